package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vthunder/demerzel/internal/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a single append-only table. Triggers
// reject UPDATE and DELETE so the table stays append-only even for other
// writers.
type SQLiteStore struct {
	db       *sql.DB
	readOnly bool
}

// OpenSQLite opens (creating if needed) a ledger database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteReadOnly opens an existing ledger database without migrating it.
// The connection is read-only, so the append-only triggers never matter.
func OpenSQLiteReadOnly(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}
	return &SQLiteStore{db: db, readOnly: true}, nil
}

// NewSQLiteStore wraps an open database and migrates it
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger (
			sequence INTEGER PRIMARY KEY,
			timestamp TEXT NOT NULL,
			tool TEXT NOT NULL,
			args JSON NOT NULL,
			user_intent TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL,
			permit TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL,
			hash TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_permit ON ledger(permit, sequence)`,
		`CREATE TRIGGER IF NOT EXISTS ledger_no_update BEFORE UPDATE ON ledger
		BEGIN SELECT RAISE(ABORT, 'ledger is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS ledger_no_delete BEFORE DELETE ON ledger
		BEGIN SELECT RAISE(ABORT, 'ledger is append-only'); END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return err
		}
	}
	return nil
}

const selectColumns = `SELECT sequence, timestamp, tool, args, user_intent, outcome, reason, permit, prev_hash, hash FROM ledger`

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if s.readOnly {
		return ErrReadOnly
	}
	args, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger (sequence, timestamp, tool, args, user_intent, outcome, reason, permit, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Tool, string(args),
		e.UserIntent, string(e.Outcome), e.Reason, e.Permit, e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Last(ctx context.Context) (*Entry, error) {
	return s.queryOne(ctx, selectColumns+` ORDER BY sequence DESC LIMIT 1`)
}

func (s *SQLiteStore) FindLatestByPermit(ctx context.Context, permit string) (*Entry, error) {
	return s.queryOne(ctx, selectColumns+` WHERE permit = ? ORDER BY sequence DESC LIMIT 1`, permit)
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	entries, err := s.query(ctx, selectColumns+` ORDER BY sequence DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, selectColumns+` ORDER BY sequence ASC`)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	entries, err := s.query(ctx, query, args...)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger rows: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		timestamp string
		args      string
		outcome   string
	)
	if err := rows.Scan(&e.Sequence, &timestamp, &e.Tool, &args, &e.UserIntent, &outcome,
		&e.Reason, &e.Permit, &e.PrevHash, &e.Hash); err != nil {
		return Entry{}, fmt.Errorf("scan ledger row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d timestamp: %w", e.Sequence, err)
	}
	e.Timestamp = ts
	e.Outcome = types.Outcome(outcome)
	if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
		return Entry{}, fmt.Errorf("entry %d args: %w", e.Sequence, err)
	}
	if e.Args == nil {
		e.Args = map[string]any{}
	}
	return e, nil
}
