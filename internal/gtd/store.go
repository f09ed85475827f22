package gtd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const storeFilename = "user_tasks.json"

// ErrTaskNotFound is returned when no open task has the given id
var ErrTaskNotFound = errors.New("task not found")

// Store manages the task list with thread-safe operations. Mutations are in
// memory until Save.
type Store struct {
	path  string
	data  StoreData
	mu    sync.RWMutex
	clock func() time.Time
}

// NewStore creates a task store in the given state directory
func NewStore(statePath string) *Store {
	return &Store{
		path:  filepath.Join(statePath, storeFilename),
		data:  StoreData{NextID: 1, Tasks: []Task{}},
		clock: time.Now,
	}
}

// WithClock overrides the clock for testing
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load reads the task list from disk
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		// File doesn't exist yet, start with empty store
		s.data = StoreData{NextID: 1, Tasks: []Task{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read task store: %w", err)
	}

	var loaded StoreData
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse task store: %w", err)
	}
	if loaded.Tasks == nil {
		loaded.Tasks = []Task{}
	}
	// never hand out an id that is already on file
	for _, t := range loaded.Tasks {
		if t.ID >= loaded.NextID {
			loaded.NextID = t.ID + 1
		}
	}
	if loaded.NextID < 1 {
		loaded.NextID = 1
	}
	s.data = loaded
	return nil
}

// Save writes the task list to disk
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal task store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// write-then-rename so a crash never leaves half a file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write task store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace task store: %w", err)
	}
	return nil
}

// Add appends an open task and returns it
func (s *Store) Add(title string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("task title is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task := Task{
		ID:        s.data.NextID,
		Title:     title,
		Status:    StatusOpen,
		CreatedAt: s.clock(),
	}
	s.data.NextID++
	s.data.Tasks = append(s.data.Tasks, task)
	return task, nil
}

// Complete marks an open task completed
func (s *Store) Complete(id int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Tasks {
		t := &s.data.Tasks[i]
		if t.ID != id || t.Status != StatusOpen {
			continue
		}
		now := s.clock()
		t.Status = StatusCompleted
		t.CompletedAt = &now
		return *t, nil
	}
	return Task{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
}

// ClearOpen marks every open task cleared and returns how many there were.
// Cleared tasks stay on file so their ids aren't reused.
func (s *Store) ClearOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.data.Tasks {
		if s.data.Tasks[i].Status == StatusOpen {
			s.data.Tasks[i].Status = StatusCleared
			n++
		}
	}
	return n
}

// Open returns the open tasks in id order
func (s *Store) Open() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Task
	for _, t := range s.data.Tasks {
		if t.Status == StatusOpen {
			result = append(result, t)
		}
	}
	return result
}

// All returns every task on file
func (s *Store) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Task, len(s.data.Tasks))
	copy(result, s.data.Tasks)
	return result
}
