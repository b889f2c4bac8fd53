package profile

import (
	"regexp"
	"strings"
)

// Personal details are picked up with cheap pattern matching on the
// user's own turns rather than a model call; a wrong guess here would be
// injected into every future prompt.

// Case-insensitivity is scoped to the lead-in phrase; the captured name
// or place itself must be capitalized.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\bmy name is )([A-Z][a-z]+)`),
	regexp.MustCompile(`(?i:\bcall me )([A-Z][a-z]+)`),
	regexp.MustCompile(`\bI'm ([A-Z][a-z]+)\b`),
	regexp.MustCompile(`\bI am ([A-Z][a-z]+)\b`),
}

const placePattern = `([A-Z][a-z]+(?: [A-Z][a-z]+)*(?:, [A-Z]{2})?)`

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\bI live in )` + placePattern),
	regexp.MustCompile(`(?i:\bI'm from )` + placePattern),
	regexp.MustCompile(`(?i:\bI'm in )` + placePattern),
}

// nonNames are capitalized words the I'm/I am patterns match that are
// not names.
var nonNames = map[string]bool{
	"Not":  true, "Just": true, "Really": true, "So": true,
	"Going": true, "Trying": true, "Feeling": true, "Very": true,
	"Sorry": true, "Sure": true, "Here": true, "Good": true,
	"Okay": true, "Done": true, "Glad": true, "Happy": true,
}

// ExtractPersonalDetails scans one user turn for a stated name or
// location and fills p only where it is still empty. Details, once
// learned, are never overwritten by a later match.
func ExtractPersonalDetails(p *Profile, text string) {
	if p.Name == "" {
		for _, pat := range namePatterns {
			if m := pat.FindStringSubmatch(text); m != nil {
				candidate := strings.TrimSpace(m[1])
				if !nonNames[candidate] {
					p.Name = candidate
					break
				}
			}
		}
	}
	if p.Location == "" {
		for _, pat := range locationPatterns {
			if m := pat.FindStringSubmatch(text); m != nil {
				p.Location = strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
				break
			}
		}
	}
}
