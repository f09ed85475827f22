package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestDebugGate(t *testing.T) {
	buf := captureLog(t)
	prev := DebugEnabled()
	t.Cleanup(func() { SetDebug(prev) })

	SetDebug(false)
	Debug("gate", "hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug off, got %q", buf.String())
	}

	SetDebug(true)
	Debug("gate", "shown %d", 2)
	if got := buf.String(); got != "[gate] shown 2\n" {
		t.Errorf("Unexpected debug line: %q", got)
	}
}

func TestSecurityMarker(t *testing.T) {
	buf := captureLog(t)
	Security("boundary", "refused %s", "led_on")
	if !strings.Contains(buf.String(), "[boundary] SECURITY refused led_on") {
		t.Errorf("Unexpected security line: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("line one\nline two", 8); got != "line one..." {
		t.Errorf("got %q", got)
	}
}
