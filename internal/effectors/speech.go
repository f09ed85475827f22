package effectors

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Synthesizer is the text-to-speech collaborator. Speak blocks until playback
// ends. It returns the measured playback time, or 0 when the synthesizer
// can't tell (the caller then keeps its estimate).
type Synthesizer interface {
	Speak(ctx context.Context, text string) (time.Duration, error)
	Beep(ctx context.Context) error
}

// ConsoleSynthesizer "speaks" by printing, for terminals and tests
type ConsoleSynthesizer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSynthesizer prints spoken lines to out
func NewConsoleSynthesizer(out io.Writer) *ConsoleSynthesizer {
	return &ConsoleSynthesizer{out: out}
}

func (c *ConsoleSynthesizer) Speak(_ context.Context, text string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "demerzel> %s\n", text)
	return 0, err
}

func (c *ConsoleSynthesizer) Beep(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprint(c.out, "\a")
	return err
}

// CommandSynthesizer runs an external TTS program (espeak, say, piper
// wrapper...) with the text as its last argument and times it.
type CommandSynthesizer struct {
	name  string
	args  []string
	beep  []string
	clock func() time.Time
}

// NewCommandSynthesizer parses a command line such as "espeak -s 160".
// beepCommand may be empty to skip beeps.
func NewCommandSynthesizer(command, beepCommand string) (*CommandSynthesizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty TTS command")
	}
	return &CommandSynthesizer{
		name:  fields[0],
		args:  fields[1:],
		beep:  strings.Fields(beepCommand),
		clock: time.Now,
	}, nil
}

func (c *CommandSynthesizer) Speak(ctx context.Context, text string) (time.Duration, error) {
	args := append(append([]string{}, c.args...), text)
	start := c.clock()
	out, err := exec.CommandContext(ctx, c.name, args...).CombinedOutput()
	elapsed := c.clock().Sub(start)
	if err != nil {
		return elapsed, fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(string(out)))
	}
	return elapsed, nil
}

func (c *CommandSynthesizer) Beep(ctx context.Context) error {
	if len(c.beep) == 0 {
		return nil
	}
	return exec.CommandContext(ctx, c.beep[0], c.beep[1:]...).Run()
}
