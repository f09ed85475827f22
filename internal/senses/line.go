package senses

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// LineRecognizer treats each input line as a final transcript, for terminals,
// piped ASR output and tests. A line starting with "~" is a partial result.
type LineRecognizer struct {
	r     io.Reader
	clock func() time.Time
}

// NewLineRecognizer reads lines from r
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, clock: time.Now}
}

// WithClock overrides the timestamp source
func (l *LineRecognizer) WithClock(clock func() time.Time) *LineRecognizer {
	l.clock = clock
	return l
}

func (l *LineRecognizer) Listen(ctx context.Context) (<-chan Transcript, error) {
	out := make(chan Transcript)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			t := Transcript{Text: line, Final: true, At: l.clock(), Source: "line"}
			if rest, ok := strings.CutPrefix(line, "~"); ok {
				t.Text, t.Final = strings.TrimSpace(rest), false
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- Transcript{At: l.clock(), Source: "line", Err: fmt.Errorf("read input: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
