package effectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/types"
)

// Invocation is one recorded actuator call
type Invocation struct {
	Timestamp time.Time      `json:"ts"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
}

// Recorder stands in for a real actuator in synthetic mode: it captures
// every call to memory and, if given a state path, to a JSONL file.
type Recorder struct {
	tool       string
	reply      string
	outputPath string
	mu         sync.Mutex
	calls      []Invocation
}

// NewRecorder records calls for tool and answers with reply. statePath may be
// empty to keep calls in memory only.
func NewRecorder(tool, reply, statePath string) *Recorder {
	r := &Recorder{tool: tool, reply: reply}
	if statePath != "" {
		r.outputPath = filepath.Join(statePath, "system", "test_output.jsonl")
	}
	return r
}

func (r *Recorder) Invoke(_ context.Context, args map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv := Invocation{Timestamp: time.Now(), Tool: r.tool, Args: types.CloneArgs(args)}
	r.calls = append(r.calls, inv)
	logging.Info("test-effector", "%s %v", r.tool, args)

	if r.outputPath == "" {
		return r.reply, nil
	}
	if err := os.MkdirAll(filepath.Dir(r.outputPath), 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(r.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("open test output: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("marshal invocation: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("write test output: %w", err)
	}
	return r.reply, nil
}

// Calls returns the invocations so far
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

// ClearOutput clears the output file and the in-memory calls
func (r *Recorder) ClearOutput() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = nil
	if r.outputPath == "" {
		return nil
	}
	if err := os.Remove(r.outputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear test output: %w", err)
	}
	return nil
}
