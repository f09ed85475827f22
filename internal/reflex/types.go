package reflex

import (
	"strconv"
	"time"

	"github.com/vthunder/demerzel/internal/types"
)

// Mode is the dialogue state
type Mode string

const (
	ModeIdle     Mode = "IDLE"
	ModeCommand  Mode = "COMMAND"
	ModeConfirm  Mode = "CONFIRM"
	ModeFollowup Mode = "FOLLOWUP"
)

// PendingAction is a tool call waiting for confirm/cancel
type PendingAction struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Command string         `json:"command"` // normalized utterance that proposed it
	Prompt  string         `json:"prompt"`  // question asked of the user
}

// State is the whole persisted dialogue state. Pending is non-nil iff Mode is
// CONFIRM; only Kernel.Step and Kernel.Expire produce new States.
type State struct {
	Mode     Mode           `json:"mode"`
	Deadline time.Time      `json:"deadline,omitempty"`
	Pending  *PendingAction `json:"pending,omitempty"`
}

// NewIdle returns the start-of-process state
func NewIdle() State {
	return State{Mode: ModeIdle}
}

// Valid checks the CONFIRM/pending invariant
func (s State) Valid() bool {
	return (s.Mode == ModeConfirm) == (s.Pending != nil)
}

// Awake reports whether the agent is listening for commands
func (s State) Awake() bool {
	return s.Mode == ModeCommand || s.Mode == ModeFollowup
}

// IntentKind tags an Intent
type IntentKind string

const (
	IntentHardWake     IntentKind = "hard_wake"
	IntentSoftWakeAck  IntentKind = "soft_wake_ack"
	IntentTime         IntentKind = "time"
	IntentRemember     IntentKind = "remember"
	IntentClearTasks   IntentKind = "clear_tasks"
	IntentCompleteTask IntentKind = "complete_task"
	IntentListTasks    IntentKind = "list_tasks"
	IntentStatus       IntentKind = "status"
	IntentLight        IntentKind = "light"
	IntentAnnounce     IntentKind = "announce"
	IntentCustom       IntentKind = "custom"
	IntentConfirm      IntentKind = "confirm"
	IntentCancel       IntentKind = "cancel"
	IntentEnd          IntentKind = "end"
	IntentAmbiguous    IntentKind = "ambiguous"
	IntentUnknown      IntentKind = "unknown"
)

// Intent is the classified meaning of one utterance
type Intent struct {
	Kind   IntentKind `json:"kind"`
	Text   string     `json:"text,omitempty"`    // remember/announce payload, custom tool, or the ambiguous prompt
	TaskID int        `json:"task_id,omitempty"` // complete_task
	On     bool       `json:"on,omitempty"`      // light
}

func (i Intent) String() string {
	switch {
	case i.Kind == IntentCompleteTask:
		return string(i.Kind) + "(" + strconv.Itoa(i.TaskID) + ")"
	case i.Kind == IntentLight && i.On:
		return "light(on)"
	case i.Kind == IntentLight:
		return "light(off)"
	case i.Text != "":
		return string(i.Kind) + "(" + i.Text + ")"
	}
	return string(i.Kind)
}

// ActionKind tags an Action
type ActionKind string

const (
	ActionSpeak  ActionKind = "speak"
	ActionBeep   ActionKind = "beep"
	ActionInvoke ActionKind = "invoke"
)

// Action is an instruction for the control loop. The kernel never performs
// actions itself.
type Action struct {
	Kind       ActionKind     `json:"kind"`
	Text       string         `json:"text,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	UserIntent string         `json:"user_intent,omitempty"`
}

// Request converts an invoke action into a gate request
func (a Action) Request() types.ToolRequest {
	return types.ToolRequest{
		Name:       a.Tool,
		Args:       types.CloneArgs(a.Args),
		UserIntent: a.UserIntent,
	}
}

func speak(text string) Action { return Action{Kind: ActionSpeak, Text: text} }

func beep() Action { return Action{Kind: ActionBeep} }

func invoke(tool string, args map[string]any, userIntent string) Action {
	if args == nil {
		args = map[string]any{}
	}
	return Action{Kind: ActionInvoke, Tool: tool, Args: args, UserIntent: userIntent}
}

// WakeSignal is how closely an utterance resembles a wake alias
type WakeSignal struct {
	Score float64 `json:"score"` // 0.0-1.0
	Alias string  `json:"alias,omitempty"`
}
