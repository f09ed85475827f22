package reflex

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vthunder/demerzel/internal/types"
)

// Command binds spoken phrases to a tool. Commands are tried only after
// every built-in pattern has failed to match.
type Command struct {
	Tool    string
	Phrases []string
	Confirm bool // ask before invoking
}

type compiledCommand struct {
	Command
	pattern *regexp.Regexp
}

// compileCommands builds one word-bounded alternation per command. Phrases
// are normalized the same way utterances are; empty ones are dropped.
func compileCommands(cmds []Command) ([]compiledCommand, error) {
	var out []compiledCommand
	for _, c := range cmds {
		var alts []string
		for _, p := range c.Phrases {
			if n := types.Normalize(p); n != "" {
				alts = append(alts, regexp.QuoteMeta(n))
			}
		}
		if c.Tool == "" || len(alts) == 0 {
			return nil, fmt.Errorf("command %q: tool and at least one phrase are required", c.Tool)
		}
		out = append(out, compiledCommand{
			Command: c,
			pattern: regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`),
		})
	}
	return out, nil
}

func (k *Kernel) matchCommand(body string) (Intent, bool) {
	for _, c := range k.commands {
		if c.pattern.MatchString(body) {
			return Intent{Kind: IntentCustom, Text: c.Tool}, true
		}
	}
	return Intent{}, false
}

func (k *Kernel) lookupCommand(tool string) (Command, bool) {
	for _, c := range k.commands {
		if c.Tool == tool {
			return c.Command, true
		}
	}
	return Command{}, false
}
