package reflex

import (
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/demerzel/internal/types"
)

// Config tunes wake detection and the dialogue windows
type Config struct {
	Aliases        []string      `yaml:"aliases"`
	WakeVerbs      []string      `yaml:"wake_verbs"`
	HardThreshold  float64       `yaml:"hard_threshold"`
	SoftThreshold  float64       `yaml:"soft_threshold"`
	CommandWindow  time.Duration `yaml:"command_window"`
	FollowupWindow time.Duration `yaml:"followup_window"`
	ConfirmWindow  time.Duration `yaml:"confirm_window"`
}

// DefaultConfig returns the stock wake/window tuning
func DefaultConfig() Config {
	return Config{
		Aliases:        []string{"demerzel", "demerzal"},
		WakeVerbs:      []string{"hey", "hi", "ok", "okay", "yo", "wake up"},
		HardThreshold:  0.55,
		SoftThreshold:  0.40,
		CommandWindow:  8 * time.Second,
		FollowupWindow: 10 * time.Second,
		ConfirmWindow:  8 * time.Second,
	}
}

// Spoken replies. Kept here so tests and the echo guard agree on them.
const (
	ReplyAwake     = "Awake."
	ReplyListening = "Yes?"
	ReplySoftWake  = "Did you call me?"
	ReplyGoodbye   = "Going to sleep."
	ReplyCancelled = "Okay, cancelled."
	ReplyUnknown   = "I didn't catch that."
	ReplyYesOrNo   = "Please say yes or no."
)

// Kernel is the dialogue state machine. It holds configuration only; every
// bit of dialogue state travels through Step's arguments and results.
type Kernel struct {
	cfg      Config
	wake     *WakeMatcher
	commands []compiledCommand
}

// NewKernel creates a kernel
func NewKernel(cfg Config) *Kernel {
	return &Kernel{
		cfg:  cfg,
		wake: NewWakeMatcher(cfg.Aliases, cfg.WakeVerbs),
	}
}

// WithCommands adds phrase-bound tool commands, matched after the built-in
// patterns in the order given
func (k *Kernel) WithCommands(cmds ...Command) (*Kernel, error) {
	compiled, err := compileCommands(cmds)
	if err != nil {
		return nil, err
	}
	k.commands = append(k.commands, compiled...)
	return k, nil
}

// Config returns the kernel's configuration
func (k *Kernel) Config() Config {
	return k.cfg
}

// Matcher returns the wake matcher built from the kernel's aliases, for
// callers computing a WakeSignal
func (k *Kernel) Matcher() *WakeMatcher {
	return k.wake
}

// Expire drops back to IDLE when the state's window has closed at now. A
// deadline exactly at now counts as closed.
func (k *Kernel) Expire(s State, now time.Time) (State, bool) {
	if s.Mode == ModeIdle || now.Before(s.Deadline) {
		return s, false
	}
	return NewIdle(), true
}

// Step classifies one utterance and computes the next state and the actions
// to perform. The utterance timestamp is the only clock consulted.
//
// Classification order: end phrase, then confirm/cancel (CONFIRM only), then
// wake, then the fixed command patterns on the alias-stripped text, then the
// configured commands, then soft wake (IDLE only), then unknown.
func (k *Kernel) Step(s State, u types.Utterance, w WakeSignal) (Intent, State, []Action) {
	now := u.At
	s, _ = k.Expire(s, now)
	text := u.Normalized

	if endPattern.MatchString(text) {
		var actions []Action
		if s.Mode != ModeIdle {
			actions = append(actions, speak(ReplyGoodbye))
		}
		return Intent{Kind: IntentEnd}, NewIdle(), actions
	}

	if s.Mode == ModeConfirm {
		return k.resolveConfirm(s, text, now)
	}

	body, prefixed := k.wake.Strip(text, k.cfg.HardThreshold)
	prefixed = prefixed && w.Score >= k.cfg.HardThreshold

	if prefixed && body == "" {
		reply := ReplyAwake
		if s.Awake() {
			reply = ReplyListening
		}
		return Intent{Kind: IntentHardWake}, k.window(ModeCommand, now), []Action{beep(), speak(reply)}
	}

	if s.Awake() || prefixed {
		if intent, ok := k.classify(body); ok {
			next, actions := k.command(intent, body, now)
			return intent, next, actions
		}
		// a word that merely resembles an alias must not eat the command
		if s.Awake() && body != text {
			if intent, ok := k.classify(text); ok {
				next, actions := k.command(intent, text, now)
				return intent, next, actions
			}
		}
	}

	if s.Mode == ModeIdle {
		if w.Score >= k.cfg.SoftThreshold {
			return Intent{Kind: IntentSoftWakeAck}, s, []Action{speak(ReplySoftWake)}
		}
		return Intent{Kind: IntentUnknown}, s, nil
	}

	return Intent{Kind: IntentUnknown}, k.window(ModeFollowup, now), []Action{speak(ReplyUnknown)}
}

// resolveConfirm handles an utterance while a pending action awaits an answer.
// Cancel wins over confirm when both appear. Anything else re-prompts without
// extending the deadline.
func (k *Kernel) resolveConfirm(s State, text string, now time.Time) (Intent, State, []Action) {
	p := s.Pending
	switch {
	case cancelPattern.MatchString(text):
		return Intent{Kind: IntentCancel}, k.window(ModeFollowup, now), []Action{speak(ReplyCancelled)}
	case confirmPattern.MatchString(text):
		userIntent := p.Command + "; " + text
		return Intent{Kind: IntentConfirm}, k.window(ModeFollowup, now),
			[]Action{invoke(p.Tool, p.Args, userIntent)}
	default:
		prompt := ReplyYesOrNo + " " + p.Prompt
		return Intent{Kind: IntentAmbiguous, Text: prompt}, s, []Action{speak(prompt)}
	}
}

// classify tries the built-in patterns, then the configured commands
func (k *Kernel) classify(body string) (Intent, bool) {
	if intent, ok := classifyCommand(body); ok {
		return intent, true
	}
	return k.matchCommand(body)
}

// command maps a recognized command intent to its transition
func (k *Kernel) command(intent Intent, body string, now time.Time) (State, []Action) {
	switch intent.Kind {
	case IntentTime:
		reply := fmt.Sprintf("It's %s.", now.Format("3:04 PM"))
		return k.window(ModeFollowup, now), []Action{speak(reply)}

	case IntentRemember:
		return k.confirm(now, &PendingAction{
			Tool:    "tasks.add",
			Args:    map[string]any{"text": intent.Text},
			Command: body,
			Prompt:  fmt.Sprintf("Should I remember: %s?", intent.Text),
		})

	case IntentClearTasks:
		return k.confirm(now, &PendingAction{
			Tool:    "tasks.clear",
			Args:    map[string]any{},
			Command: body,
			Prompt:  "Clear all of your tasks?",
		})

	case IntentAnnounce:
		return k.confirm(now, &PendingAction{
			Tool:    "discord.post",
			Args:    map[string]any{"content": intent.Text},
			Command: body,
			Prompt:  fmt.Sprintf("Announce: %s?", intent.Text),
		})

	case IntentCompleteTask:
		return k.window(ModeFollowup, now), []Action{invoke("tasks.complete", map[string]any{"id": intent.TaskID}, body)}

	case IntentListTasks:
		return k.window(ModeFollowup, now), []Action{invoke("tasks.list", nil, body)}

	case IntentStatus:
		return k.window(ModeFollowup, now), []Action{invoke("system.status", nil, body)}

	case IntentLight:
		tool, state := "led_off", "off"
		if intent.On {
			tool, state = "led_on", "on"
		}
		if !lightVerbPattern.MatchString(body) {
			return k.confirm(now, &PendingAction{
				Tool:    tool,
				Args:    map[string]any{},
				Command: body,
				Prompt:  fmt.Sprintf("Turn the light %s?", state),
			})
		}
		return k.window(ModeFollowup, now), []Action{invoke(tool, nil, body)}

	case IntentCustom:
		c, ok := k.lookupCommand(intent.Text)
		if !ok {
			break
		}
		if c.Confirm {
			return k.confirm(now, &PendingAction{
				Tool:    c.Tool,
				Args:    map[string]any{},
				Command: body,
				Prompt:  fmt.Sprintf("Run %s?", strings.ReplaceAll(c.Tool, "_", " ")),
			})
		}
		return k.window(ModeFollowup, now), []Action{invoke(c.Tool, nil, body)}
	}
	return k.window(ModeFollowup, now), []Action{speak(ReplyUnknown)}
}

func (k *Kernel) confirm(now time.Time, p *PendingAction) (State, []Action) {
	return State{
		Mode:     ModeConfirm,
		Deadline: now.Add(k.cfg.ConfirmWindow),
		Pending:  p,
	}, []Action{speak(p.Prompt)}
}

func (k *Kernel) window(mode Mode, now time.Time) State {
	d := k.cfg.FollowupWindow
	if mode == ModeCommand {
		d = k.cfg.CommandWindow
	}
	return State{Mode: mode, Deadline: now.Add(d)}
}
