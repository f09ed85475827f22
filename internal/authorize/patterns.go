package authorize

import "regexp"

// Both patterns run against normalized intent text.
var (
	harmPattern = regexp.MustCompile(`\b(kill|killing|hurt|hurting|harm|harming|injure|injuring|attack|attacking|murder|stab|shoot|shooting|poison|bomb|explode|detonate|burn down|set fire|torch|destroy|smash|wreck|sabotage|strangle|choke|weapon|weapons)\b`)

	explicitIntentPattern = regexp.MustCompile(`\b(yes|yeah|yep|yup|sure|confirm|confirmed|do it|go ahead|ok|okay|affirmative|please do|correct|proceed)\b` +
		`|\b(?:turn|switch) (?:[a-z0-9]+ ){0,3}(?:on|off)\b` +
		`|\b(?:turn|switch) (?:on|off)\b`)
)

// HarmIndicated reports whether intent text uses violence/destruction words
func HarmIndicated(normalized string) bool {
	return harmPattern.MatchString(normalized)
}

// ExplicitIntent reports whether intent text contains an imperative
// confirmation
func ExplicitIntent(normalized string) bool {
	return explicitIntentPattern.MatchString(normalized)
}
