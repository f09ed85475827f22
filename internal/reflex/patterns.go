package reflex

import (
	"regexp"
	"strconv"
)

// All patterns run against normalized text ([a-z0-9 ], single spaces).
var (
	endPattern = regexp.MustCompile(`\b(goodbye|good bye|bye|go to sleep|thats all|that is all|stop listening|dismissed|end session)\b`)

	cancelPattern  = regexp.MustCompile(`\b(no|nope|nah|cancel|never mind|nevermind|dont|do not|abort|stop)\b`)
	confirmPattern = regexp.MustCompile(`\b(yes|yeah|yep|yup|sure|confirm|confirmed|do it|go ahead|ok|okay|affirmative|please do|correct)\b`)

	timePattern     = regexp.MustCompile(`\b(what time is it|whats the time|what is the time|tell me the time|current time)\b|^time$`)
	rememberPattern = regexp.MustCompile(`^(?:please )?remember (?:that |to )?(.+)$`)
	clearPattern    = regexp.MustCompile(`\b(?:clear|delete|erase|wipe)(?: all)?(?: of)?(?: my| the)? (?:tasks|task list|todos|to dos|todo list)\b`)
	completePattern = regexp.MustCompile(`^(?:mark )?task (?:number )?(\d+|` + numberAlternation + `)(?: as)? (?:done|complete|completed|finished)$` +
		`|^(?:complete|finish|done with|check off) task (?:number )?(\d+|` + numberAlternation + `)$`)

	listPattern     = regexp.MustCompile(`\b(what are my tasks|list (?:my )?tasks|read (?:my )?tasks|whats on my list)\b`)
	statusPattern   = regexp.MustCompile(`\b(system status|status report|how are you running)\b`)
	lightPattern    = regexp.MustCompile(`\b(?:turn|switch) (?:the )?(?:light|lights|led) (on|off)\b|\b(?:turn|switch) (on|off) (?:the )?(?:light|lights|led)\b|^(?:light|lights|led) (on|off)$`)
	announcePattern = regexp.MustCompile(`^(?:announce|tell discord) (?:that )?(.+)$`)
)

// the bare "lights on" form carries no verb, so it has to be confirmed
var lightVerbPattern = regexp.MustCompile(`\b(?:turn|switch)\b`)

const numberAlternation = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty`

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

func parseTaskNumber(s string) (int, bool) {
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// firstGroup returns the first non-empty capture group of a match
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// classifyCommand runs the deterministic command patterns in their fixed
// order: time, remember, clear tasks, complete task by id, then the rest.
func classifyCommand(body string) (Intent, bool) {
	if timePattern.MatchString(body) {
		return Intent{Kind: IntentTime}, true
	}
	if m := rememberPattern.FindStringSubmatch(body); m != nil {
		return Intent{Kind: IntentRemember, Text: m[1]}, true
	}
	if clearPattern.MatchString(body) {
		return Intent{Kind: IntentClearTasks}, true
	}
	if m := completePattern.FindStringSubmatch(body); m != nil {
		if id, ok := parseTaskNumber(firstGroup(m)); ok {
			return Intent{Kind: IntentCompleteTask, TaskID: id}, true
		}
	}
	if listPattern.MatchString(body) {
		return Intent{Kind: IntentListTasks}, true
	}
	if statusPattern.MatchString(body) {
		return Intent{Kind: IntentStatus}, true
	}
	if m := lightPattern.FindStringSubmatch(body); m != nil {
		return Intent{Kind: IntentLight, On: firstGroup(m) == "on"}, true
	}
	if m := announcePattern.FindStringSubmatch(body); m != nil {
		return Intent{Kind: IntentAnnounce, Text: m[1]}, true
	}
	return Intent{}, false
}
