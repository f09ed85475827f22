package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vthunder/demerzel/internal/types"
)

// ErrChainBroken is returned by Verify when the hash chain does not hold
var ErrChainBroken = errors.New("ledger chain broken")

// Store is a durable append-only sequence of entries. Implementations must
// be safe for concurrent readers; the Ledger serializes writers.
type Store interface {
	// Append persists a fully formed entry (sequence and hashes assigned)
	Append(ctx context.Context, e Entry) error
	// Last returns the newest entry, or nil for an empty store
	Last(ctx context.Context) (*Entry, error)
	// FindLatestByPermit returns the newest entry carrying permit, or nil
	FindLatestByPermit(ctx context.Context, permit string) (*Entry, error)
	// Recent returns up to n newest entries, oldest first
	Recent(ctx context.Context, n int) ([]Entry, error)
	// All returns every entry in sequence order
	All(ctx context.Context) ([]Entry, error)
	Close() error
}

// Ledger assigns sequence numbers and chain hashes and hands entries to a
// Store. One Ledger per store; appends are serialized here.
type Ledger struct {
	mu    sync.Mutex
	store Store
	seq   uint64
	head  string
	clock func() time.Time
}

// New resumes the chain from whatever the store already holds
func New(ctx context.Context, store Store) (*Ledger, error) {
	l := &Ledger{
		store: store,
		head:  GenesisHash,
		clock: time.Now,
	}
	last, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}
	if last != nil {
		l.seq = last.Sequence
		l.head = last.Hash
	}
	return l, nil
}

// WithClock overrides the clock used for entries without a timestamp
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Append records e and returns it as stored. The entry is durable in the
// store before Append returns; callers must not publish anything derived from
// it (a permit) on error.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock()
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Args = types.CloneArgs(e.Args)
	if e.Args == nil {
		e.Args = map[string]any{}
	}
	e.Sequence = l.seq + 1
	e.PrevHash = l.head

	hash, err := ComputeHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("hash entry: %w", err)
	}
	e.Hash = hash

	if err := l.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("append entry %d: %w", e.Sequence, err)
	}
	l.seq = e.Sequence
	l.head = e.Hash
	return e, nil
}

// FindLatestByPermit returns the newest entry for permit, or nil
func (l *Ledger) FindLatestByPermit(ctx context.Context, permit string) (*Entry, error) {
	if permit == "" {
		return nil, nil
	}
	return l.store.FindLatestByPermit(ctx, permit)
}

// Recent returns up to n newest entries, oldest first
func (l *Ledger) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	return l.store.Recent(ctx, n)
}

// Head returns the last sequence number and hash
func (l *Ledger) Head() (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq, l.head
}

// Verify walks the whole chain, checking sequence continuity, prev links and
// every entry's hash.
func (l *Ledger) Verify(ctx context.Context) error {
	entries, err := l.store.All(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	return VerifyEntries(entries)
}

// VerifyEntries checks a full chain starting at genesis
func VerifyEntries(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d expected prev %s, got %s", ErrChainBroken, e.Sequence, prev, e.PrevHash)
		}
		computed, err := ComputeHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, e.Sequence, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrChainBroken, e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.store.Close()
}
