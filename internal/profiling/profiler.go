package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level determines how detailed the profiling is
type Level string

const (
	LevelOff      Level = "off"      // No profiling
	LevelMinimal  Level = "minimal"  // L1: one timing per turn
	LevelDetailed Level = "detailed" // L2: echo filter, classify, gate, boundary, speak
)

// ParseLevel accepts "", off, minimal and detailed
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelOff:
		return LevelOff, nil
	case LevelMinimal, LevelDetailed:
		return Level(s), nil
	}
	return LevelOff, fmt.Errorf("unknown profiling level %q", s)
}

// Timing is a single timing measurement
type Timing struct {
	UtteranceID string         `json:"utterance_id"`
	Stage       string         `json:"stage"`
	StartTime   time.Time      `json:"start_time"`
	DurationMs  float64        `json:"duration_ms"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Profiler writes stage timings for the control loop as JSONL. A nil
// *Profiler, or one at LevelOff, records nothing.
type Profiler struct {
	level   Level
	mu      sync.Mutex
	logFile *os.File
	encoder *json.Encoder
}

// Open creates a profiler writing to path. At LevelOff no file is opened.
func Open(level Level, path string) (*Profiler, error) {
	p := &Profiler{level: level}
	if level == LevelOff {
		return p, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create profiling dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiling log: %w", err)
	}
	p.logFile = f
	p.encoder = json.NewEncoder(f)
	return p, nil
}

// Close closes the profiler and its log file
func (p *Profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile != nil {
		err := p.logFile.Close()
		p.logFile, p.encoder = nil, nil
		return err
	}
	return nil
}

// Start begins timing a stage and returns a function to call when done
func (p *Profiler) Start(utteranceID, stage string, level Level) func() {
	return p.StartWithMetadata(utteranceID, stage, level, nil)
}

// StartWithMetadata begins timing a stage with additional metadata
func (p *Profiler) StartWithMetadata(utteranceID, stage string, level Level, metadata map[string]any) func() {
	if !p.ShouldProfile(level) {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(utteranceID, stage, start, time.Since(start), metadata)
	}
}

// Record writes one timing. The level check is the caller's (Start does it).
func (p *Profiler) Record(utteranceID, stage string, start time.Time, duration time.Duration, metadata map[string]any) {
	if p == nil {
		return
	}
	timing := Timing{
		UtteranceID: utteranceID,
		Stage:       stage,
		StartTime:   start,
		DurationMs:  float64(duration.Nanoseconds()) / 1e6,
		Metadata:    metadata,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		_ = p.encoder.Encode(timing)
	}
}

// ShouldProfile returns true if stages at level are recorded
func (p *Profiler) ShouldProfile(level Level) bool {
	if p == nil {
		return false
	}
	switch p.level {
	case LevelDetailed:
		return level == LevelMinimal || level == LevelDetailed
	case LevelMinimal:
		return level == LevelMinimal
	default:
		return false
	}
}

// Level returns the configured level
func (p *Profiler) Level() Level {
	if p == nil {
		return LevelOff
	}
	return p.level
}
