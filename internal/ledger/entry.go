// Package ledger is the append-only record of every capability decision.
//
// Entries are hash-chained: each stores the previous entry's hash and its own
// hash over the canonical (RFC 8785) JSON of everything else. Stores only ever
// append; nothing here updates or deletes a row.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/vthunder/demerzel/internal/types"
)

// GenesisHash is the PrevHash of the first entry
const GenesisHash = "genesis"

// Entry is one gate evaluation
type Entry struct {
	Sequence   uint64         `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	UserIntent string         `json:"user_intent"`
	Outcome    types.Outcome  `json:"outcome"`
	Reason     string         `json:"reason"`
	Permit     string         `json:"permit,omitempty"`
	PrevHash   string         `json:"prev_hash"`
	Hash       string         `json:"hash"`
}

// Canonical returns the JCS form of v's JSON encoding. Two values that differ
// only in key order or number spelling (3 vs 3.0) canonicalize identically.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// CanonicalArgs is Canonical for a tool argument map; nil and empty agree
func CanonicalArgs(args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := Canonical(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ComputeHash hashes the entry with its Hash field cleared
func ComputeHash(e Entry) (string, error) {
	e.Hash = ""
	if e.Args == nil {
		e.Args = map[string]any{}
	}
	b, err := Canonical(e)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// SameRequest reports whether two entries describe the same tool call
func SameRequest(a, b Entry) bool {
	if a.Tool != b.Tool || a.UserIntent != b.UserIntent {
		return false
	}
	ca, errA := CanonicalArgs(a.Args)
	cb, errB := CanonicalArgs(b.Args)
	return errA == nil && errB == nil && ca == cb
}
