package reflex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWakeMatcher_Signal(t *testing.T) {
	m := NewWakeMatcher([]string{"Demerzel", "demerzal"}, []string{"hey", "wake up"})

	tests := []struct {
		text string
		min  float64
		max  float64
	}{
		{"demerzel", 1, 1},
		{"hey demerzel", 1, 1},
		{"wake up demerzel turn the light on", 1, 1},
		{"demerzle", 0.8, 0.99},
		{"the mersel", 0.55, 0.95},
		{"what time is it", 0, 0.4},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sig := m.Signal(tt.text)
			assert.GreaterOrEqual(t, sig.Score, tt.min)
			assert.LessOrEqual(t, sig.Score, tt.max)
		})
	}
}

func TestWakeMatcher_Strip(t *testing.T) {
	m := NewWakeMatcher([]string{"demerzel"}, []string{"hey", "ok", "wake up"})

	tests := []struct {
		text  string
		rest  string
		found bool
	}{
		{"demerzel", "", true},
		{"hey demerzel", "", true},
		{"demerzel wake up", "", true},
		{"ok demerzel what time is it", "what time is it", true},
		{"demerzle remember eggs", "remember eggs", true},
		{"remember eggs", "remember eggs", false},
		{"hey there", "hey there", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			rest, found := m.Strip(tt.text, 0.55)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestWakeMatcher_SplitName(t *testing.T) {
	// recognizers often split an unfamiliar name in two
	m := NewWakeMatcher([]string{"demerzel"}, nil)

	rest, found := m.Strip("demer zel status report", 0.55)
	assert.True(t, found)
	assert.Equal(t, "status report", rest)
}
