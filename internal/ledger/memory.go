package ledger

import (
	"context"
	"sync"

	"github.com/vthunder/demerzel/internal/types"
)

// MemoryStore keeps entries for the life of the process
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	byPermit map[string]int // permit -> index of newest entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPermit: make(map[string]int)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Args = types.CloneArgs(e.Args)
	s.entries = append(s.entries, e)
	if e.Permit != "" {
		s.byPermit[e.Permit] = len(s.entries) - 1
	}
	return nil
}

func (s *MemoryStore) Last(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.copyAt(len(s.entries) - 1), nil
}

func (s *MemoryStore) FindLatestByPermit(_ context.Context, permit string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byPermit[permit]
	if !ok {
		return nil, nil
	}
	return s.copyAt(i), nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(0, len(s.entries)-n)
	out := make([]Entry, 0, len(s.entries)-start)
	for i := start; i < len(s.entries); i++ {
		out = append(out, *s.copyAt(i))
	}
	return out, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for i := range s.entries {
		out = append(out, *s.copyAt(i))
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// copyAt returns a copy callers may mutate freely
func (s *MemoryStore) copyAt(i int) *Entry {
	e := s.entries[i]
	e.Args = types.CloneArgs(e.Args)
	return &e
}
