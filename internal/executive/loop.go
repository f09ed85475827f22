// Package executive runs the control loop: recognizer input goes through the
// echo guard and the dialogue kernel, and the kernel's actions are carried
// out through the synthesizer or the gate and execution boundary.
package executive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/demerzel/internal/activity"
	"github.com/vthunder/demerzel/internal/authorize"
	"github.com/vthunder/demerzel/internal/effectors"
	"github.com/vthunder/demerzel/internal/filter"
	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/profiling"
	"github.com/vthunder/demerzel/internal/reflex"
	"github.com/vthunder/demerzel/internal/senses"
	"github.com/vthunder/demerzel/internal/types"
)

// Spoken replies the loop adds on top of the kernel's
const (
	ReplyRefused  = "Sorry, I couldn't do that."
	ReplyFailed   = "Sorry, that didn't work."
	ReplyApology  = "Sorry, something went wrong."
	ReplyDeniedTo = "I can't do that."
)

// DefaultTick is how often window deadlines are checked without input
const DefaultTick = 250 * time.Millisecond

// Config wires the loop's collaborators
type Config struct {
	Kernel   *reflex.Kernel
	Echo     *filter.EchoGuard
	Gate     *authorize.Gate
	Boundary *effectors.Boundary
	Synth    effectors.Synthesizer
	Activity *activity.Log       // optional
	Profiler *profiling.Profiler // optional
	Tick     time.Duration
	Clock    func() time.Time
}

// Loop owns the dialogue state. All state changes happen under mu, one
// transcript or tick at a time.
type Loop struct {
	kernel   *reflex.Kernel
	echo     *filter.EchoGuard
	gate     *authorize.Gate
	boundary *effectors.Boundary
	synth    effectors.Synthesizer
	activity *activity.Log
	profiler *profiling.Profiler
	tick     time.Duration
	clock    func() time.Time

	mu    sync.Mutex
	state reflex.State
}

// New creates a loop starting in IDLE
func New(cfg Config) (*Loop, error) {
	if cfg.Kernel == nil || cfg.Echo == nil || cfg.Gate == nil || cfg.Boundary == nil || cfg.Synth == nil {
		return nil, errors.New("executive: kernel, echo guard, gate, boundary and synthesizer are required")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Loop{
		kernel:   cfg.Kernel,
		echo:     cfg.Echo,
		gate:     cfg.Gate,
		boundary: cfg.Boundary,
		synth:    cfg.Synth,
		activity: cfg.Activity,
		profiler: cfg.Profiler,
		tick:     cfg.Tick,
		clock:    cfg.Clock,
		state:    reflex.NewIdle(),
	}, nil
}

// State returns a copy of the current dialogue state
func (l *Loop) State() reflex.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	if s.Pending != nil {
		p := *s.Pending
		p.Args = types.CloneArgs(p.Args)
		s.Pending = &p
	}
	return s
}

// Run consumes rec until ctx is cancelled or the recognizer closes its
// stream, checking window deadlines every tick in between.
func (l *Loop) Run(ctx context.Context, rec senses.Recognizer) error {
	transcripts, err := rec.Listen(ctx)
	if err != nil {
		return fmt.Errorf("start recognizer: %w", err)
	}

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	logging.Info("loop", "Listening")
	for {
		select {
		case <-ctx.Done():
			logging.Info("loop", "Stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			l.Tick(ctx, l.clock())
		case t, ok := <-transcripts:
			if !ok {
				logging.Info("loop", "Recognizer closed")
				return nil
			}
			l.HandleTranscript(ctx, t)
		}
	}
}

// Tick drops back to IDLE when the current window has closed at now. It
// reports whether that happened.
func (l *Loop) Tick(ctx context.Context, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.recoverTurn(ctx, "")

	return l.expire("", now)
}

// HandleTranscript runs one recognizer event through the whole pipeline. It
// never returns an error: every failure ends the turn with an apology and
// IDLE.
func (l *Loop) HandleTranscript(ctx context.Context, t senses.Transcript) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.recoverTurn(ctx, "")

	if t.Err != nil {
		l.fail(ctx, "", fmt.Errorf("recognizer: %w", t.Err))
		return
	}
	now := t.At
	if now.IsZero() {
		now = l.clock()
	}
	if !t.Final {
		logging.Debug("loop", "partial: %s", logging.Truncate(t.Text, 40))
		l.record(l.activity.LogPartial(t.Text, t.Source))
		return
	}

	// deadlines first, so a late utterance sees the expired state
	l.expire("", now)

	if l.echo.ShouldSuppress(now) {
		ev, _ := l.echo.Last()
		logging.Debug("loop", "suppressed while speaking: %s", logging.Truncate(t.Text, 40))
		l.record(l.activity.LogSuppressed(t.Text, ev.GuardUntil))
		return
	}

	u := types.NewUtterance(t.Text, now).WithSource(t.Source)
	if u.Empty() {
		return
	}
	l.record(l.activity.LogInput(u.ID, u.Raw, u.Source))
	defer l.profiler.StartWithMetadata(u.ID, "turn", profiling.LevelMinimal, map[string]any{"source": u.Source})()

	done := l.profiler.Start(u.ID, "echo_filter", profiling.LevelDetailed)
	u, ok := l.echo.Filter(u)
	done()
	if !ok {
		ev, _ := l.echo.Last()
		l.record(l.activity.LogEchoDropped(u.ID, u.Raw, ev.Text))
		return
	}

	done = l.profiler.Start(u.ID, "classify", profiling.LevelDetailed)
	signal := l.kernel.Matcher().Signal(u.Normalized)
	intent, next, actions := l.kernel.Step(l.state, u, signal)
	done()
	logging.Debug("loop", "%q -> %s (wake %.2f) %s -> %s", u.Normalized, intent, signal.Score, l.state.Mode, next.Mode)
	l.record(l.activity.LogIntent(u.ID, intent.String(), signal.Score, string(next.Mode)))
	l.setState(u.ID, next, "step")

	for _, a := range actions {
		if err := l.perform(ctx, u.ID, a); err != nil {
			l.fail(ctx, u.ID, err)
			return
		}
	}
}

// perform carries out one kernel action. Only collaborator failures are
// returned; gate verdicts and boundary refusals are spoken instead.
func (l *Loop) perform(ctx context.Context, utteranceID string, a reflex.Action) error {
	switch a.Kind {
	case reflex.ActionSpeak:
		return l.speak(ctx, utteranceID, a.Text)
	case reflex.ActionBeep:
		if err := l.synth.Beep(ctx); err != nil {
			return fmt.Errorf("beep: %w", err)
		}
		return nil
	case reflex.ActionInvoke:
		return l.invoke(ctx, utteranceID, a.Request())
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

func (l *Loop) invoke(ctx context.Context, utteranceID string, req types.ToolRequest) error {
	done := l.profiler.Start(utteranceID, "gate", profiling.LevelDetailed)
	d := l.gate.Evaluate(ctx, req)
	done()
	l.record(l.activity.LogToolDecision(utteranceID, req.Name, string(d.Outcome), d.Reason, d.Sequence))

	if !d.Allowed() {
		if d.Outcome == types.OutcomeClarify {
			return l.speak(ctx, utteranceID, sentence(d.Reason))
		}
		return l.speak(ctx, utteranceID, ReplyDeniedTo+" "+sentence(d.Reason))
	}

	start := l.clock()
	done = l.profiler.StartWithMetadata(utteranceID, "boundary", profiling.LevelDetailed, map[string]any{"tool": req.Name})
	result, err := l.boundary.Run(ctx, req.Name, req.Args, d.Permit)
	done()
	switch {
	case errors.Is(err, effectors.ErrRefused):
		// details are in the security log and the activity log, not in speech
		l.record(l.activity.LogRefusal(utteranceID, req.Name, err))
		return l.speak(ctx, utteranceID, ReplyRefused)
	case err != nil:
		logging.Warn("loop", "%s failed: %v", req.Name, err)
		l.record(l.activity.LogError(req.Name+" failed", err, map[string]any{"utterance_id": utteranceID}))
		return l.speak(ctx, utteranceID, ReplyFailed)
	}

	l.record(l.activity.LogToolResult(utteranceID, req.Name, result, l.clock().Sub(start)))
	if result == "" {
		return nil
	}
	return l.speak(ctx, utteranceID, result)
}

// speak tells the echo guard before handing text to the synthesizer, and
// swaps in the measured duration when the synthesizer reports one.
func (l *Loop) speak(ctx context.Context, utteranceID, text string) error {
	start := l.clock()
	ev := l.echo.OnSpeechStart(text, start)

	done := l.profiler.Start(utteranceID, "speak", profiling.LevelDetailed)
	measured, err := l.synth.Speak(ctx, text)
	done()
	if err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	duration := ev.Duration
	if measured > 0 {
		l.echo.OnSpeechEnd(start.Add(measured))
		duration = measured
	}
	l.record(l.activity.LogSpeak(utteranceID, text, duration, measured > 0))
	return nil
}

func (l *Loop) expire(utteranceID string, now time.Time) bool {
	next, expired := l.kernel.Expire(l.state, now)
	if expired {
		logging.Debug("loop", "%s window closed", l.state.Mode)
		l.setState(utteranceID, next, "timeout")
	}
	return expired
}

func (l *Loop) setState(utteranceID string, next reflex.State, cause string) {
	prev := l.state.Mode
	l.state = next
	if prev != next.Mode {
		l.record(l.activity.LogTransition(utteranceID, string(prev), string(next.Mode), cause))
	}
}

// fail ends the turn: back to IDLE and a best-effort apology
func (l *Loop) fail(ctx context.Context, utteranceID string, err error) {
	logging.Warn("loop", "turn failed: %v", err)
	l.record(l.activity.LogError("turn failed", err, map[string]any{"utterance_id": utteranceID}))
	l.setState(utteranceID, reflex.NewIdle(), "error")

	defer func() {
		if r := recover(); r != nil {
			logging.Warn("loop", "apology failed: %v", r)
		}
	}()
	if err := l.speak(ctx, utteranceID, ReplyApology); err != nil {
		logging.Debug("loop", "apology not spoken: %v", err)
	}
}

func (l *Loop) recoverTurn(ctx context.Context, utteranceID string) {
	if r := recover(); r != nil {
		l.fail(ctx, utteranceID, fmt.Errorf("panic: %v", r))
	}
}

// record logs activity write failures; they never affect the turn
func (l *Loop) record(err error) {
	if err != nil {
		logging.Warn("loop", "activity log: %v", err)
	}
}

// sentence capitalizes a gate reason and ends it with a period
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
