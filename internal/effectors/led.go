package effectors

import (
	"context"
	"fmt"
	"os"
)

// LED switches a status light by writing its brightness file (a sysfs
// "brightness" node on a Pi, or any plain file for a dry run).
type LED struct {
	path string
	on   bool
}

// NewLED returns the led_on (on=true) or led_off actuator for path
func NewLED(path string, on bool) *LED {
	return &LED{path: path, on: on}
}

func (l *LED) Invoke(_ context.Context, _ map[string]any) (string, error) {
	value, reply := "0\n", "Light is off."
	if l.on {
		value, reply = "1\n", "Light is on."
	}
	if err := os.WriteFile(l.path, []byte(value), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", l.path, err)
	}
	return reply, nil
}
