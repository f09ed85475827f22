package types

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Utterance is one final recognizer result. Treat it as immutable once built.
type Utterance struct {
	ID         string    `json:"id"`
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"` // lowercased, [a-z0-9 ] only, single spaces
	At         time.Time `json:"at"`
	Source     string    `json:"source,omitempty"` // mic, stdin, discord
}

// NewUtterance builds an Utterance with a fresh id and its normalized form
func NewUtterance(text string, at time.Time) Utterance {
	return Utterance{
		ID:         uuid.NewString(),
		Raw:        text,
		Normalized: Normalize(text),
		At:         at,
	}
}

// WithSource returns a copy tagged with the collaborator that produced it
func (u Utterance) WithSource(source string) Utterance {
	u.Source = source
	return u
}

// Empty reports whether nothing classifiable survived normalization
func (u Utterance) Empty() bool {
	return u.Normalized == ""
}

// Normalize folds accents, lowercases, drops apostrophes and maps every other
// rune outside [a-z0-9] to a space, then collapses whitespace.
func Normalize(s string) string {
	// transform.Chain keeps state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// "what's" -> "whats"
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Outcome is the Capability Gate verdict
type Outcome string

const (
	OutcomeAllow   Outcome = "ALLOW"
	OutcomeClarify Outcome = "CLARIFY"
	OutcomeDeny    Outcome = "DENY"
)

// ToolRequest asks the gate whether a tool may run
type ToolRequest struct {
	Name       string         `json:"name"`
	Args       map[string]any `json:"args"`
	UserIntent string         `json:"user_intent"`
}

// ToolDecision is the gate's answer. Permit is only set on ALLOW for
// world-affecting tools.
type ToolDecision struct {
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason"`
	Permit   string  `json:"permit,omitempty"`
	Sequence uint64  `json:"sequence,omitempty"` // ledger row recording this decision
}

// Allowed reports whether the decision lets the request proceed
func (d ToolDecision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// CloneArgs returns a shallow copy so callers can't mutate a recorded request
func CloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
