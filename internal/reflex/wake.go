package reflex

import (
	"strings"

	"github.com/vthunder/demerzel/internal/filter"
	"github.com/vthunder/demerzel/internal/types"
)

// WakeMatcher fuzzy-matches normalized text against the wake aliases
type WakeMatcher struct {
	aliases [][]string // each alias split into words
	names   []string
	verbs   [][]string
}

// NewWakeMatcher builds a matcher. Aliases and verbs are normalized first.
func NewWakeMatcher(aliases, verbs []string) *WakeMatcher {
	m := &WakeMatcher{}
	for _, a := range aliases {
		if n := types.Normalize(a); n != "" {
			m.aliases = append(m.aliases, strings.Fields(n))
			m.names = append(m.names, n)
		}
	}
	for _, v := range verbs {
		if n := types.Normalize(v); n != "" {
			m.verbs = append(m.verbs, strings.Fields(n))
		}
	}
	return m
}

// Signal scores text against every alias: the best of the whole text and of
// the leading word window (after an optional wake verb).
func (m *WakeMatcher) Signal(normalized string) WakeSignal {
	var sig WakeSignal
	for _, name := range m.names {
		if r := filter.Ratio(normalized, name); r > sig.Score {
			sig = WakeSignal{Score: r, Alias: name}
		}
	}
	tokens := strings.Fields(normalized)
	start := m.skipVerb(tokens, 0)
	if score, alias, _ := m.bestPrefix(tokens, start); score > sig.Score {
		sig = WakeSignal{Score: score, Alias: alias}
	}
	return sig
}

// Strip removes a leading "[verb] alias" whose similarity clears threshold
// and returns what is left. A lone trailing verb ("demerzel wake up") is
// dropped too. found is false when no alias prefix was present, in which
// case rest is the input unchanged.
func (m *WakeMatcher) Strip(normalized string, threshold float64) (rest string, found bool) {
	tokens := strings.Fields(normalized)
	start := m.skipVerb(tokens, 0)
	score, _, width := m.bestPrefix(tokens, start)
	if width == 0 || score < threshold {
		return normalized, false
	}
	remaining := tokens[start+width:]
	if end := m.skipVerb(remaining, 0); end == len(remaining) {
		remaining = nil
	}
	return strings.Join(remaining, " "), true
}

// skipVerb returns the index after one wake verb at tokens[i:], or i
func (m *WakeMatcher) skipVerb(tokens []string, i int) int {
	best := i
	for _, v := range m.verbs {
		if i+len(v) > len(tokens) {
			continue
		}
		if equalWords(tokens[i:i+len(v)], v) && i+len(v) > best {
			best = i + len(v)
		}
	}
	return best
}

// bestPrefix compares every alias against windows of tokens starting at i,
// one word narrower to one word wider than the alias (recognizers split and
// merge names). Ties keep the wider window.
func (m *WakeMatcher) bestPrefix(tokens []string, i int) (score float64, alias string, width int) {
	for ai, words := range m.aliases {
		for w := max(1, len(words)-1); w <= len(words)+1; w++ {
			if i+w > len(tokens) {
				break
			}
			r := filter.Ratio(strings.Join(tokens[i:i+w], " "), m.names[ai])
			if r > score || (r == score && r > 0 && w > width) {
				score, alias, width = r, m.names[ai], w
			}
		}
	}
	return score, alias, width
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
