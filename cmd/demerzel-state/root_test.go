package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vthunder/demerzel/internal/activity"
	"github.com/vthunder/demerzel/internal/authorize"
	"github.com/vthunder/demerzel/internal/gtd"
	"github.com/vthunder/demerzel/internal/ledger"
	"github.com/vthunder/demerzel/internal/types"
)

// seedState writes a small ledger, activity log and task list under dir
func seedState(t *testing.T, backend string) (dir, permit string) {
	t.Helper()
	dir = t.TempDir()
	ctx := context.Background()

	store, err := ledger.OpenStore(backend, dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	l, err := ledger.New(ctx, store)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	gate := authorize.NewGate(authorize.DefaultRegistry(), l, authorize.GateConfig{})
	d := gate.Evaluate(ctx, types.ToolRequest{Name: "led_on", UserIntent: "turn the light on"})
	if d.Outcome != types.OutcomeAllow {
		t.Fatalf("seed decision: %+v", d)
	}
	gate.Evaluate(ctx, types.ToolRequest{Name: "led_on", UserIntent: "hurt someone"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	log := activity.New(dir)
	log.LogInput("u1", "demerzel", "line")
	log.LogRefusal("u2", "led_on", context.DeadlineExceeded)

	tasks := gtd.NewStore(dir)
	tasks.Add("buy milk")
	done, _ := tasks.Add("call mom")
	tasks.Complete(done.ID)
	if err := tasks.Save(); err != nil {
		t.Fatal(err)
	}
	return dir, d.Permit
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLedgerCmd(t *testing.T) {
	for _, backend := range []string{ledger.BackendSQLite, ledger.BackendJSONL} {
		t.Run(backend, func(t *testing.T) {
			dir, permit := seedState(t, backend)
			base := []string{"--state", dir, "--backend", backend}

			out, err := execute(t, append([]string{"ledger"}, base...)...)
			if err != nil {
				t.Fatalf("ledger: %v", err)
			}
			if !strings.Contains(out, "ALLOW") || !strings.Contains(out, "DENY") {
				t.Errorf("expected both decisions, got:\n%s", out)
			}

			out, err = execute(t, append([]string{"ledger", "--verify"}, base...)...)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if !strings.HasPrefix(out, "OK: 2 entries") {
				t.Errorf("verify output: %s", out)
			}

			out, err = execute(t, append([]string{"ledger", "--permit", permit}, base...)...)
			if err != nil {
				t.Fatalf("permit lookup: %v", err)
			}
			if !strings.Contains(out, `"outcome": "ALLOW"`) {
				t.Errorf("permit lookup output: %s", out)
			}

			if _, err := execute(t, append([]string{"ledger", "--permit", "nope"}, base...)...); err == nil {
				t.Error("expected error for unknown permit")
			}
		})
	}
}

func TestLedgerCmd_MemoryBackend(t *testing.T) {
	if _, err := execute(t, "ledger", "--state", t.TempDir(), "--backend", "memory"); err == nil {
		t.Error("expected error for memory backend")
	}
}

func TestLedgerCmd_MissingStateCreatesNothing(t *testing.T) {
	for _, backend := range []string{ledger.BackendSQLite, ledger.BackendJSONL} {
		dir := filepath.Join(t.TempDir(), "state")
		if _, err := execute(t, "ledger", "--state", dir, "--backend", backend); err == nil {
			t.Errorf("%s: expected error for missing ledger", backend)
		}
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s: state dir was created (stat err %v)", backend, err)
		}
	}
}

func TestActivityCmd(t *testing.T) {
	dir, _ := seedState(t, ledger.BackendJSONL)

	out, err := execute(t, "activity", "--state", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "input") || !strings.Contains(out, "refusal") {
		t.Errorf("activity output:\n%s", out)
	}

	out, _ = execute(t, "activity", "--state", dir, "--type", "refusal")
	if strings.Contains(out, "demerzel") || !strings.Contains(out, "deadline exceeded") {
		t.Errorf("type filter output:\n%s", out)
	}

	out, _ = execute(t, "activity", "--state", dir, "--grep", "DEMERZEL")
	if !strings.Contains(out, "demerzel") {
		t.Errorf("grep output:\n%s", out)
	}

	out, _ = execute(t, "activity", "--state", dir, "--utterance", "u2")
	if strings.Contains(out, "demerzel") || !strings.Contains(out, "refusal") {
		t.Errorf("utterance output:\n%s", out)
	}

	out, _ = execute(t, "activity", "--state", t.TempDir())
	if !strings.Contains(out, "No activity.") {
		t.Errorf("empty output: %s", out)
	}
}

func TestTasksCmd(t *testing.T) {
	dir, _ := seedState(t, ledger.BackendJSONL)

	out, err := execute(t, "tasks", "--state", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "buy milk") || strings.Contains(out, "call mom") {
		t.Errorf("open tasks output:\n%s", out)
	}

	out, _ = execute(t, "tasks", "--state", dir, "--all")
	if !strings.Contains(out, "[completed] call mom") {
		t.Errorf("all tasks output:\n%s", out)
	}
}

func TestReverse(t *testing.T) {
	entries := []activity.Entry{{Summary: "c"}, {Summary: "b"}, {Summary: "a"}}
	reverse(entries)
	if entries[0].Summary != "a" || entries[2].Summary != "c" {
		t.Errorf("reverse: %+v", entries)
	}
}
