package filter

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/types"
)

const (
	// DefaultEchoThreshold is the similarity at or above which recognized text
	// is treated as the agent hearing itself
	DefaultEchoThreshold = 0.78

	DefaultWordsPerSecond = 2.5
	DefaultMinSpeech      = 600 * time.Millisecond
	DefaultGuardInterval  = 800 * time.Millisecond
)

// EchoConfig tunes the echo guard
type EchoConfig struct {
	WordsPerSecond      float64       `yaml:"words_per_second"`
	MinDuration         time.Duration `yaml:"min_duration"`
	GuardInterval       time.Duration `yaml:"guard_interval"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
}

// DefaultEchoConfig returns the stock tuning
func DefaultEchoConfig() EchoConfig {
	return EchoConfig{
		WordsPerSecond:      DefaultWordsPerSecond,
		MinDuration:         DefaultMinSpeech,
		GuardInterval:       DefaultGuardInterval,
		SimilarityThreshold: DefaultEchoThreshold,
	}
}

// SpeechEvent is the most recent thing the agent said
type SpeechEvent struct {
	Text       string
	Normalized string
	Start      time.Time
	Duration   time.Duration
	Measured   bool // Duration came from the synthesizer, not the estimate
	GuardUntil time.Time
}

// EchoGuard drops recognizer input that is (probably) the agent's own voice.
// It suppresses everything while speaking plus a guard interval, and drops
// near-duplicates of the last utterance even after that.
type EchoGuard struct {
	mu   sync.Mutex
	cfg  EchoConfig
	last *SpeechEvent
}

// NewEchoGuard creates a guard; zero fields in cfg fall back to defaults
func NewEchoGuard(cfg EchoConfig) *EchoGuard {
	def := DefaultEchoConfig()
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = def.WordsPerSecond
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = def.MinDuration
	}
	if cfg.GuardInterval <= 0 {
		cfg.GuardInterval = def.GuardInterval
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	return &EchoGuard{cfg: cfg}
}

// EstimateDuration guesses how long text takes to say
func (g *EchoGuard) EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	est := time.Duration(math.Round(float64(words) / g.cfg.WordsPerSecond * float64(time.Second)))
	if est < g.cfg.MinDuration {
		return g.cfg.MinDuration
	}
	return est
}

// OnSpeechStart records that synthesis of text begins at now. It replaces any
// previous speech event.
func (g *EchoGuard) OnSpeechStart(text string, now time.Time) SpeechEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	dur := g.EstimateDuration(text)
	ev := &SpeechEvent{
		Text:       text,
		Normalized: types.Normalize(text),
		Start:      now,
		Duration:   dur,
		GuardUntil: now.Add(dur + g.cfg.GuardInterval),
	}
	g.last = ev
	logging.Debug("echo", "Speaking %q (est %v, guard until %s)",
		logging.Truncate(text, 40), dur, ev.GuardUntil.Format("15:04:05.000"))
	return *ev
}

// OnSpeechEnd replaces the estimate with the measured duration (now - start).
func (g *EchoGuard) OnSpeechEnd(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil || now.Before(g.last.Start) {
		return
	}
	g.last.Duration = now.Sub(g.last.Start)
	g.last.Measured = true
	g.last.GuardUntil = now.Add(g.cfg.GuardInterval)
}

// ShouldSuppress reports whether recognizer input must be ignored at now
func (g *EchoGuard) ShouldSuppress(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil {
		return false
	}
	return now.Before(g.last.GuardUntil)
}

// Filter returns the utterance and true if it may be classified, or false if
// it matches the last speech event closely enough to be an echo.
func (g *EchoGuard) Filter(u types.Utterance) (types.Utterance, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil || u.Normalized == "" {
		return u, true
	}
	score := Ratio(u.Normalized, g.last.Normalized)
	if score >= g.cfg.SimilarityThreshold {
		logging.Debug("echo", "Dropped %q (%.2f similar to last speech)", logging.Truncate(u.Normalized, 40), score)
		return u, false
	}
	return u, true
}

// Last returns the current speech event, if any
func (g *EchoGuard) Last() (SpeechEvent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil {
		return SpeechEvent{}, false
	}
	return *g.last, true
}
