package generate

import (
	"regexp"
	"strings"
)

var (
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	markdownBold    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	markdownItalic  = regexp.MustCompile(`\*([^*]+)\*`)
	markdownCode    = regexp.MustCompile("`([^`]*)`")
	markdownBullet  = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	multiBlank      = regexp.MustCompile(`\n{3,}`)
)

// speechReplacer maps typography that voice synthesis reads badly to
// plain equivalents.
var speechReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"—", ", ",
	"–", "-",
	"…", "...",
)

// CleanForSpeech strips markdown formatting and normalizes typography so
// the reply reads naturally through voice synthesis.
func CleanForSpeech(text string) string {
	text = markdownHeading.ReplaceAllString(text, "")
	text = markdownBold.ReplaceAllString(text, "$1")
	text = markdownItalic.ReplaceAllString(text, "$1")
	text = markdownCode.ReplaceAllString(text, "$1")
	text = markdownBullet.ReplaceAllString(text, "")
	text = speechReplacer.Replace(text)
	text = multiBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
