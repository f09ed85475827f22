package reflex

import (
	"reflect"
	"testing"
	"time"

	"github.com/vthunder/demerzel/internal/types"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestKernel() *Kernel {
	return NewKernel(DefaultConfig())
}

func utt(text string, at time.Time) types.Utterance {
	return types.NewUtterance(text, at)
}

func awake(mode Mode, deadline time.Time) State {
	return State{Mode: mode, Deadline: deadline}
}

func hasAction(actions []Action, kind ActionKind, text string) bool {
	for _, a := range actions {
		if a.Kind == kind && (text == "" || a.Text == text) {
			return true
		}
	}
	return false
}

func TestStep_HardWakeFromIdle(t *testing.T) {
	k := newTestKernel()

	intent, next, actions := k.Step(NewIdle(), utt("Demerzel", t0), WakeSignal{Score: 0.9})

	if intent.Kind != IntentHardWake {
		t.Fatalf("intent = %v, want hard_wake", intent)
	}
	if next.Mode != ModeCommand {
		t.Errorf("next mode = %s, want COMMAND", next.Mode)
	}
	if !next.Deadline.Equal(t0.Add(8 * time.Second)) {
		t.Errorf("deadline = %v", next.Deadline)
	}
	if !hasAction(actions, ActionBeep, "") || !hasAction(actions, ActionSpeak, ReplyAwake) {
		t.Errorf("expected beep and %q, got %+v", ReplyAwake, actions)
	}
}

func TestStep_HardWakeForms(t *testing.T) {
	k := newTestKernel()
	m := k.Matcher()

	tests := []struct {
		text string
		want IntentKind
	}{
		{"demerzel", IntentHardWake},
		{"hey demerzel", IntentHardWake},
		{"demerzel wake up", IntentHardWake},
		{"wake up demerzel", IntentHardWake},
		{"demerzal", IntentHardWake},
		{"demerzel what time is it", IntentTime},
		{"hey demerzel remember buy milk", IntentRemember},
		{"what time is it", IntentUnknown}, // asleep, not addressed
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			u := utt(tt.text, t0)
			intent, _, _ := k.Step(NewIdle(), u, m.Signal(u.Normalized))
			if intent.Kind != tt.want {
				t.Errorf("Step(%q) intent = %v, want %s", tt.text, intent, tt.want)
			}
		})
	}
}

func TestStep_LowScoreDoesNotWake(t *testing.T) {
	k := newTestKernel()

	intent, next, _ := k.Step(NewIdle(), utt("demerzel", t0), WakeSignal{Score: 0.45})
	if intent.Kind != IntentSoftWakeAck {
		t.Fatalf("intent = %v, want soft_wake_ack", intent)
	}
	if next.Mode != ModeIdle {
		t.Errorf("soft wake must not leave IDLE, got %s", next.Mode)
	}

	intent, next, actions := k.Step(NewIdle(), utt("demerzel", t0), WakeSignal{Score: 0.1})
	if intent.Kind != IntentUnknown || next.Mode != ModeIdle || len(actions) != 0 {
		t.Errorf("below soft threshold should be silent unknown, got %v %s %+v", intent, next.Mode, actions)
	}
}

func TestStep_SoftWakeOnlyInIdle(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeFollowup, t0.Add(5*time.Second))

	intent, next, actions := k.Step(s, utt("demerzle blah", t0), WakeSignal{Score: 0.45})
	if intent.Kind != IntentUnknown {
		t.Errorf("intent = %v, want unknown while awake", intent)
	}
	if next.Mode != ModeFollowup || !next.Deadline.Equal(t0.Add(10*time.Second)) {
		t.Errorf("unknown while awake should refresh FOLLOWUP, got %+v", next)
	}
	if !hasAction(actions, ActionSpeak, ReplyUnknown) {
		t.Errorf("expected %q, got %+v", ReplyUnknown, actions)
	}
}

func TestStep_RememberMovesToConfirm(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeCommand, t0.Add(8*time.Second))

	intent, next, actions := k.Step(s, utt("remember buy milk", t0), WakeSignal{})

	if intent.Kind != IntentRemember || intent.Text != "buy milk" {
		t.Fatalf("intent = %v, want remember(buy milk)", intent)
	}
	if next.Mode != ModeConfirm || next.Pending == nil {
		t.Fatalf("next = %+v, want CONFIRM with pending", next)
	}
	if next.Pending.Tool != "tasks.add" {
		t.Errorf("pending tool = %s", next.Pending.Tool)
	}
	if !reflect.DeepEqual(next.Pending.Args, map[string]any{"text": "buy milk"}) {
		t.Errorf("pending args = %v", next.Pending.Args)
	}
	if !hasAction(actions, ActionSpeak, "Should I remember: buy milk?") {
		t.Errorf("expected confirmation prompt, got %+v", actions)
	}
}

func TestStep_TimeReply(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeCommand, t0.Add(8*time.Second))

	intent, next, actions := k.Step(s, utt("What time is it?", t0), WakeSignal{})
	if intent.Kind != IntentTime {
		t.Fatalf("intent = %v", intent)
	}
	if next.Mode != ModeFollowup {
		t.Errorf("next mode = %s, want FOLLOWUP", next.Mode)
	}
	if !hasAction(actions, ActionSpeak, "It's 9:30 AM.") {
		t.Errorf("unexpected actions %+v", actions)
	}
}

func TestStep_CommandPatterns(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeFollowup, t0.Add(5*time.Second))

	tests := []struct {
		text     string
		want     Intent
		tool     string
		args     map[string]any
		nextMode Mode
	}{
		{"clear my tasks", Intent{Kind: IntentClearTasks}, "", nil, ModeConfirm},
		{"delete all tasks", Intent{Kind: IntentClearTasks}, "", nil, ModeConfirm},
		{"task 3 done", Intent{Kind: IntentCompleteTask, TaskID: 3}, "tasks.complete", map[string]any{"id": 3}, ModeFollowup},
		{"complete task number two", Intent{Kind: IntentCompleteTask, TaskID: 2}, "tasks.complete", map[string]any{"id": 2}, ModeFollowup},
		{"what are my tasks", Intent{Kind: IntentListTasks}, "tasks.list", map[string]any{}, ModeFollowup},
		{"system status", Intent{Kind: IntentStatus}, "system.status", map[string]any{}, ModeFollowup},
		{"turn the light on", Intent{Kind: IntentLight, On: true}, "led_on", map[string]any{}, ModeFollowup},
		{"turn off the lights", Intent{Kind: IntentLight}, "led_off", map[string]any{}, ModeFollowup},
		{"switch the light off", Intent{Kind: IntentLight}, "led_off", map[string]any{}, ModeFollowup},
		{"lights on", Intent{Kind: IntentLight, On: true}, "", nil, ModeConfirm},
		{"announce dinner is ready", Intent{Kind: IntentAnnounce, Text: "dinner is ready"}, "", nil, ModeConfirm},
		{"remember to clear my tasks", Intent{Kind: IntentRemember, Text: "clear my tasks"}, "", nil, ModeConfirm},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, next, actions := k.Step(s, utt(tt.text, t0), WakeSignal{})
			if intent != tt.want {
				t.Fatalf("intent = %+v, want %+v", intent, tt.want)
			}
			if next.Mode != tt.nextMode {
				t.Errorf("next mode = %s, want %s", next.Mode, tt.nextMode)
			}
			if tt.tool == "" {
				return
			}
			if len(actions) != 1 || actions[0].Kind != ActionInvoke {
				t.Fatalf("expected one invoke action, got %+v", actions)
			}
			if actions[0].Tool != tt.tool || !reflect.DeepEqual(actions[0].Args, tt.args) {
				t.Errorf("invoke = %s %v, want %s %v", actions[0].Tool, actions[0].Args, tt.tool, tt.args)
			}
			if actions[0].UserIntent != types.Normalize(tt.text) {
				t.Errorf("user intent = %q", actions[0].UserIntent)
			}
		})
	}
}

func TestStep_BareLightNeedsConfirmation(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeFollowup, t0.Add(5*time.Second))

	_, next, actions := k.Step(s, utt("led off", t0), WakeSignal{})
	if next.Mode != ModeConfirm || next.Pending == nil {
		t.Fatalf("expected CONFIRM with a pending action, got %+v", next)
	}
	if next.Pending.Tool != "led_off" || next.Pending.Command != "led off" {
		t.Errorf("pending = %+v", next.Pending)
	}
	if !hasAction(actions, ActionSpeak, "Turn the light off?") {
		t.Errorf("expected confirmation prompt, got %+v", actions)
	}

	_, next, actions = k.Step(next, utt("yes", t0.Add(2*time.Second)), WakeSignal{})
	if next.Mode != ModeFollowup {
		t.Errorf("next mode = %s, want FOLLOWUP", next.Mode)
	}
	if len(actions) != 1 || actions[0].Tool != "led_off" || actions[0].UserIntent != "led off; yes" {
		t.Errorf("expected led_off invoke with confirmed intent, got %+v", actions)
	}
}

func confirmState(k *Kernel, t *testing.T) State {
	t.Helper()
	_, s, _ := k.Step(awake(ModeCommand, t0.Add(8*time.Second)), utt("remember buy milk", t0), WakeSignal{})
	if s.Mode != ModeConfirm {
		t.Fatalf("setup: expected CONFIRM, got %s", s.Mode)
	}
	return s
}

func TestStep_ConfirmInvokesPending(t *testing.T) {
	k := newTestKernel()
	s := confirmState(k, t)
	at := t0.Add(2 * time.Second)

	intent, next, actions := k.Step(s, utt("Yes, do it", at), WakeSignal{})
	if intent.Kind != IntentConfirm {
		t.Fatalf("intent = %v", intent)
	}
	if next.Mode != ModeFollowup || next.Pending != nil {
		t.Errorf("next = %+v, want FOLLOWUP without pending", next)
	}
	if !next.Deadline.Equal(at.Add(10 * time.Second)) {
		t.Errorf("deadline = %v", next.Deadline)
	}
	if len(actions) != 1 || actions[0].Kind != ActionInvoke || actions[0].Tool != "tasks.add" {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].UserIntent != "remember buy milk; yes do it" {
		t.Errorf("user intent = %q", actions[0].UserIntent)
	}
}

func TestStep_CancelDiscardsPending(t *testing.T) {
	k := newTestKernel()
	s := confirmState(k, t)

	// cancel wins when both words appear
	intent, next, actions := k.Step(s, utt("yes no cancel", t0.Add(time.Second)), WakeSignal{})
	if intent.Kind != IntentCancel {
		t.Fatalf("intent = %v", intent)
	}
	if next.Mode != ModeFollowup || next.Pending != nil {
		t.Errorf("next = %+v", next)
	}
	if hasAction(actions, ActionInvoke, "") {
		t.Error("cancel must not invoke anything")
	}
}

func TestStep_ConfirmRepromptKeepsDeadline(t *testing.T) {
	k := newTestKernel()
	s := confirmState(k, t)
	deadline := s.Deadline

	at := t0.Add(time.Second)
	for i := 0; i < 3; i++ {
		var intent Intent
		var actions []Action
		intent, s, actions = k.Step(s, utt("hmm what was that", at), WakeSignal{})
		if intent.Kind != IntentAmbiguous {
			t.Fatalf("intent = %v, want ambiguous", intent)
		}
		if s.Mode != ModeConfirm || !s.Deadline.Equal(deadline) {
			t.Fatalf("re-prompt changed state: %+v", s)
		}
		if !hasAction(actions, ActionSpeak, ReplyYesOrNo+" Should I remember: buy milk?") {
			t.Errorf("unexpected actions %+v", actions)
		}
		at = at.Add(2 * time.Second)
	}

	// the window closes regardless of stalling
	intent, next, actions := k.Step(s, utt("yes", deadline), WakeSignal{})
	if next.Mode != ModeIdle || intent.Kind == IntentConfirm || hasAction(actions, ActionInvoke, "") {
		t.Errorf("expired CONFIRM must not execute: %v %+v %+v", intent, next, actions)
	}
}

func TestStep_WakeInsideConfirmReprompts(t *testing.T) {
	k := newTestKernel()
	s := confirmState(k, t)

	intent, next, _ := k.Step(s, utt("demerzel", t0.Add(time.Second)), WakeSignal{Score: 1})
	if intent.Kind != IntentAmbiguous || next.Mode != ModeConfirm {
		t.Errorf("wake in CONFIRM should re-prompt, got %v %s", intent, next.Mode)
	}
}

func TestStep_EndPhrasePriority(t *testing.T) {
	k := newTestKernel()
	states := []State{
		NewIdle(),
		awake(ModeCommand, t0.Add(time.Second)),
		awake(ModeFollowup, t0.Add(time.Second)),
		confirmState(k, t),
	}
	texts := []string{"goodbye", "demerzel goodbye", "yes goodbye", "remember buy milk and go to sleep", "thats all"}

	for _, s := range states {
		for _, text := range texts {
			intent, next, actions := k.Step(s, utt(text, t0), WakeSignal{Score: 1})
			if intent.Kind != IntentEnd || next.Mode != ModeIdle || next.Pending != nil {
				t.Errorf("%s + %q: got %v -> %+v", s.Mode, text, intent, next)
			}
			if hasAction(actions, ActionInvoke, "") {
				t.Errorf("%s + %q: end phrase must not invoke tools", s.Mode, text)
			}
		}
	}
}

func TestExpire(t *testing.T) {
	k := newTestKernel()
	deadline := t0.Add(8 * time.Second)

	for _, mode := range []Mode{ModeCommand, ModeFollowup} {
		s := awake(mode, deadline)
		if _, expired := k.Expire(s, deadline.Add(-time.Millisecond)); expired {
			t.Errorf("%s expired early", mode)
		}
		next, expired := k.Expire(s, deadline)
		if !expired || next.Mode != ModeIdle {
			t.Errorf("%s should expire at its deadline", mode)
		}
		// long delays are just "already expired"
		if next, expired := k.Expire(s, deadline.Add(time.Hour)); !expired || next != NewIdle() {
			t.Errorf("%s should expire after a long delay", mode)
		}
	}

	confirm := confirmState(k, t)
	next, expired := k.Expire(confirm, confirm.Deadline)
	if !expired || next.Pending != nil {
		t.Error("CONFIRM should expire and drop its pending action")
	}

	if _, expired := k.Expire(NewIdle(), t0); expired {
		t.Error("IDLE never expires")
	}
}

func TestStep_TimeoutCheckedFirst(t *testing.T) {
	k := newTestKernel()
	s := awake(ModeCommand, t0)

	// "what time is it" after the window: asleep again, so not answered
	intent, next, actions := k.Step(s, utt("what time is it", t0.Add(time.Second)), WakeSignal{})
	if intent.Kind != IntentUnknown || next.Mode != ModeIdle || len(actions) != 0 {
		t.Errorf("expected silent unknown in IDLE, got %v %+v %+v", intent, next, actions)
	}
}

func TestStep_AwakeAliasLookalikeDoesNotEatCommand(t *testing.T) {
	k := NewKernel(Config{
		Aliases:        []string{"dee merzel"},
		WakeVerbs:      []string{"hey"},
		HardThreshold:  0.55,
		SoftThreshold:  0.4,
		CommandWindow:  8 * time.Second,
		FollowupWindow: 10 * time.Second,
		ConfirmWindow:  8 * time.Second,
	})
	s := awake(ModeCommand, t0.Add(8*time.Second))
	u := utt("remember buy milk", t0)

	intent, _, _ := k.Step(s, u, k.Matcher().Signal(u.Normalized))
	if intent.Kind != IntentRemember || intent.Text != "buy milk" {
		t.Errorf("intent = %v, want remember(buy milk)", intent)
	}
}

func TestIntentString(t *testing.T) {
	tests := map[string]Intent{
		"complete_task(4)": {Kind: IntentCompleteTask, TaskID: 4},
		"light(on)":        {Kind: IntentLight, On: true},
		"remember(milk)":   {Kind: IntentRemember, Text: "milk"},
		"end":              {Kind: IntentEnd},
	}
	for want, intent := range tests {
		if got := intent.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
