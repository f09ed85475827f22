package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeInput        Type = "input"         // Final transcript received
	TypePartial      Type = "partial"       // Partial transcript, shown but never classified
	TypeSuppressed   Type = "suppressed"    // Dropped while speaking or inside the guard interval
	TypeEchoDropped  Type = "echo_dropped"  // Dropped as a near-duplicate of our own speech
	TypeIntent       Type = "intent"        // Kernel classification
	TypeTransition   Type = "transition"    // Dialogue mode changed
	TypeSpeak        Type = "speak"         // Text handed to the synthesizer
	TypeToolDecision Type = "tool_decision" // Gate verdict
	TypeToolResult   Type = "tool_result"   // Actuator ran
	TypeRefusal      Type = "refusal"       // Boundary refused a permit
	TypeError        Type = "error"         // Something went wrong
)

// Entry represents a single activity log entry
type Entry struct {
	Timestamp   time.Time      `json:"ts"`
	Type        Type           `json:"type"`
	Summary     string         `json:"summary"`
	Source      string         `json:"source,omitempty"`       // Recognizer that produced the input
	UtteranceID string         `json:"utterance_id,omitempty"` // Correlates everything one utterance caused
	Mode        string         `json:"mode,omitempty"`         // Dialogue mode after the event
	Intent      string         `json:"intent,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Data        map[string]any `json:"data,omitempty"` // Structured details
}

// Log is the activity logger
type Log struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// New creates an activity logger
func New(statePath string) *Log {
	return &Log{
		path:  filepath.Join(statePath, "system", "activity.jsonl"),
		clock: time.Now,
	}
}

// WithClock overrides the timestamp source for entries that carry none
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Path returns the JSONL file location
func (l *Log) Path() string {
	return l.path
}

// Log appends an entry to the activity log. A nil *Log discards entries.
func (l *Log) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Helper methods for common event types

// LogInput logs a final transcript
func (l *Log) LogInput(utteranceID, text, source string) error {
	return l.Log(Entry{
		Type:        TypeInput,
		Summary:     text,
		Source:      source,
		UtteranceID: utteranceID,
	})
}

// LogPartial logs a partial transcript
func (l *Log) LogPartial(text, source string) error {
	return l.Log(Entry{Type: TypePartial, Summary: text, Source: source})
}

// LogSuppressed logs input dropped by the timing guard
func (l *Log) LogSuppressed(text string, guardUntil time.Time) error {
	return l.Log(Entry{
		Type:    TypeSuppressed,
		Summary: text,
		Data:    map[string]any{"guard_until": guardUntil},
	})
}

// LogEchoDropped logs input dropped as an echo of lastSpeech
func (l *Log) LogEchoDropped(utteranceID, text, lastSpeech string) error {
	return l.Log(Entry{
		Type:        TypeEchoDropped,
		Summary:     text,
		UtteranceID: utteranceID,
		Data:        map[string]any{"last_speech": lastSpeech},
	})
}

// LogIntent logs the kernel's classification of one utterance
func (l *Log) LogIntent(utteranceID, intent string, wakeScore float64, mode string) error {
	return l.Log(Entry{
		Type:        TypeIntent,
		Summary:     intent,
		UtteranceID: utteranceID,
		Intent:      intent,
		Mode:        mode,
		Data:        map[string]any{"wake_score": wakeScore},
	})
}

// LogTransition logs a dialogue mode change; cause is "step" or "timeout"
func (l *Log) LogTransition(utteranceID, from, to, cause string) error {
	return l.Log(Entry{
		Type:        TypeTransition,
		Summary:     from + " -> " + to,
		UtteranceID: utteranceID,
		Mode:        to,
		Data:        map[string]any{"from": from, "cause": cause},
	})
}

// LogSpeak logs text handed to the synthesizer
func (l *Log) LogSpeak(utteranceID, text string, duration time.Duration, measured bool) error {
	return l.Log(Entry{
		Type:        TypeSpeak,
		Summary:     text,
		UtteranceID: utteranceID,
		Data: map[string]any{
			"duration_ms": duration.Milliseconds(),
			"measured":    measured,
		},
	})
}

// LogToolDecision logs a gate verdict. The permit itself is not logged here;
// the ledger holds it.
func (l *Log) LogToolDecision(utteranceID, tool, outcome, reason string, sequence uint64) error {
	return l.Log(Entry{
		Type:        TypeToolDecision,
		Summary:     outcome + ": " + reason,
		UtteranceID: utteranceID,
		Tool:        tool,
		Data: map[string]any{
			"outcome":  outcome,
			"reason":   reason,
			"sequence": sequence,
		},
	})
}

// LogToolResult logs a completed actuator call
func (l *Log) LogToolResult(utteranceID, tool, result string, duration time.Duration) error {
	return l.Log(Entry{
		Type:        TypeToolResult,
		Summary:     result,
		UtteranceID: utteranceID,
		Tool:        tool,
		Data:        map[string]any{"duration_ms": duration.Milliseconds()},
	})
}

// LogRefusal logs a boundary refusal
func (l *Log) LogRefusal(utteranceID, tool string, err error) error {
	return l.Log(Entry{
		Type:        TypeRefusal,
		Summary:     err.Error(),
		UtteranceID: utteranceID,
		Tool:        tool,
	})
}

// LogError logs an error
func (l *Log) LogError(summary string, err error, data map[string]any) error {
	if data == nil {
		data = make(map[string]any)
	}
	data["error"] = err.Error()
	return l.Log(Entry{
		Type:    TypeError,
		Summary: summary,
		Data:    data,
	})
}

// Query methods

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Search searches entries by text (in summary and data), most recent first
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Summary), query) {
			result = append(result, e)
			continue
		}
		if e.Data != nil {
			dataJSON, _ := json.Marshal(e.Data)
			if strings.Contains(strings.ToLower(string(dataJSON)), query) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// ByType returns entries of a specific type, most recent first
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Type == t {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// ForUtterance returns everything one utterance caused, in order
func (l *Log) ForUtterance(utteranceID string) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if e.UtteranceID == utteranceID {
			result = append(result, e)
		}
	}
	return result, nil
}

// readAll reads all entries from the log file
func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
