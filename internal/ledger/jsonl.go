package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLStore appends one JSON object per line to a file and fsyncs each
// write. Reads rescan the file; a voice agent's ledger stays small.
type JSONLStore struct {
	path     string
	mu       sync.Mutex
	file     *os.File
	readOnly bool
}

// OpenJSONL opens (creating if needed) a ledger file
func OpenJSONL(path string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &JSONLStore{path: path, file: f}, nil
}

func (s *JSONLStore) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	if s.file == nil {
		return fmt.Errorf("ledger file %s is closed", s.path)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return s.file.Sync()
}

func (s *JSONLStore) Last(ctx context.Context) (*Entry, error) {
	entries, err := s.All(ctx)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[len(entries)-1], nil
}

func (s *JSONLStore) FindLatestByPermit(ctx context.Context, permit string) (*Entry, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Permit == permit {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func (s *JSONLStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// All parses the file. A malformed line is an error, not something to
// skip: a ledger with holes can't be verified.
func (s *JSONLStore) All(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var entries []Entry
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", i+1, err)
		}
		if e.Args == nil {
			e.Args = map[string]any{}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
