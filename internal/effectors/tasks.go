package effectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vthunder/demerzel/internal/gtd"
)

// TaskActuators performs the tasks.* tools against the task store
type TaskActuators struct {
	store *gtd.Store
}

// NewTaskActuators wraps a loaded store
func NewTaskActuators(store *gtd.Store) *TaskActuators {
	return &TaskActuators{store: store}
}

// RegisterWith binds tasks.add, tasks.clear, tasks.complete and tasks.list
func (t *TaskActuators) RegisterWith(b *Boundary) error {
	for tool, a := range map[string]Actuator{
		"tasks.add":      ActuatorFunc(t.Add),
		"tasks.clear":    ActuatorFunc(t.Clear),
		"tasks.complete": ActuatorFunc(t.Complete),
		"tasks.list":     ActuatorFunc(t.List),
	} {
		if err := b.Register(tool, a); err != nil {
			return err
		}
	}
	return nil
}

func (t *TaskActuators) Add(_ context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	task, err := t.store.Add(text)
	if err != nil {
		return "", err
	}
	if err := t.store.Save(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added task %d: %s.", task.ID, task.Title), nil
}

func (t *TaskActuators) Clear(_ context.Context, _ map[string]any) (string, error) {
	n := t.store.ClearOpen()
	if err := t.store.Save(); err != nil {
		return "", err
	}
	switch n {
	case 0:
		return "You had no tasks.", nil
	case 1:
		return "Cleared one task.", nil
	}
	return fmt.Sprintf("Cleared %d tasks.", n), nil
}

func (t *TaskActuators) Complete(_ context.Context, args map[string]any) (string, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return "", err
	}
	task, err := t.store.Complete(id)
	if errors.Is(err, gtd.ErrTaskNotFound) {
		return fmt.Sprintf("There's no open task %d.", id), nil
	}
	if err != nil {
		return "", err
	}
	if err := t.store.Save(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Marked task %d done: %s.", task.ID, task.Title), nil
}

func (t *TaskActuators) List(_ context.Context, _ map[string]any) (string, error) {
	open := t.store.Open()
	if len(open) == 0 {
		return "You have no open tasks.", nil
	}
	parts := make([]string, 0, len(open))
	for _, task := range open {
		parts = append(parts, fmt.Sprintf("%d, %s", task.ID, task.Title))
	}
	noun := "tasks"
	if len(open) == 1 {
		noun = "task"
	}
	return fmt.Sprintf("You have %d %s. %s.", len(open), noun, strings.Join(parts, ". ")), nil
}

// intArg accepts the numeric shapes an id takes before and after a JSON
// round trip
func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("argument %q is not an integer: %v", key, args[key])
}
