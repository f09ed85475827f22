package gtd

import "time"

// Task statuses
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusCleared   = "cleared"
)

// Task is one item on the owner's spoken task list. IDs are small integers
// so they can be said aloud ("task 3 done") and are never reused.
type Task struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"` // open, completed, cleared
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StoreData is the on-disk shape of the task file
type StoreData struct {
	NextID int    `json:"next_id"`
	Tasks  []Task `json:"tasks"`
}
