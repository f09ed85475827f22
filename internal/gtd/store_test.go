package gtd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir()).WithClock(func() time.Time { return t0 })
}

func TestStore_LoadSave(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStore(tmpDir)

	// Should start empty
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(store.Open()) != 0 {
		t.Errorf("Expected 0 tasks, got %d", len(store.Open()))
	}

	store.Add("Buy milk")
	store.Add("Call mom")

	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(tmpDir, "user_tasks.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("user_tasks.json not created")
	}

	store2 := NewStore(tmpDir)
	if err := store2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	open := store2.Open()
	if len(open) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(open))
	}
	if open[0].ID != 1 || open[1].ID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", open[0].ID, open[1].ID)
	}

	task, _ := store2.Add("Third")
	if task.ID != 3 {
		t.Errorf("next id after reload = %d, want 3", task.ID)
	}
}

func TestStore_Add(t *testing.T) {
	store := newTestStore(t)

	task, err := store.Add("  Buy milk ")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if task.ID != 1 || task.Title != "Buy milk" || task.Status != StatusOpen {
		t.Errorf("unexpected task %+v", task)
	}
	if !task.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v", task.CreatedAt)
	}

	if _, err := store.Add("   "); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestStore_Complete(t *testing.T) {
	store := newTestStore(t)
	store.Add("one")
	store.Add("two")

	task, err := store.Complete(2)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if task.Status != StatusCompleted || task.CompletedAt == nil {
		t.Errorf("unexpected task %+v", task)
	}
	if len(store.Open()) != 1 {
		t.Errorf("expected 1 open task, got %d", len(store.Open()))
	}

	if _, err := store.Complete(2); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("completing twice: err = %v, want ErrTaskNotFound", err)
	}
	if _, err := store.Complete(42); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("unknown id: err = %v, want ErrTaskNotFound", err)
	}
}

func TestStore_ClearOpen(t *testing.T) {
	store := newTestStore(t)
	store.Add("one")
	store.Add("two")
	store.Add("three")
	store.Complete(1)

	if n := store.ClearOpen(); n != 2 {
		t.Errorf("ClearOpen() = %d, want 2", n)
	}
	if len(store.Open()) != 0 {
		t.Error("expected no open tasks")
	}
	if len(store.All()) != 3 {
		t.Error("cleared tasks should stay on file")
	}

	task, _ := store.Add("four")
	if task.ID != 4 {
		t.Errorf("ids must not be reused, got %d", task.ID)
	}
}

func TestStore_LoadRepairsNextID(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, storeFilename)
	data := `{"tasks":[{"id":7,"title":"x","status":"open","created_at":"2026-03-01T09:00:00Z"}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(tmpDir)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	task, _ := store.Add("y")
	if task.ID != 8 {
		t.Errorf("id = %d, want 8", task.ID)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, storeFilename), []byte("{not json"), 0644)

	if err := NewStore(tmpDir).Load(); err == nil {
		t.Error("expected parse error")
	}
}
