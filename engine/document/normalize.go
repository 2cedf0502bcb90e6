package document

import (
	"regexp"
	"strings"
)

var (
	spaceRunRe   = regexp.MustCompile(` {2,}`)
	newlineRunRe = regexp.MustCompile(`\n{2,}`)
	crTabReplace = strings.NewReplacer("\r", " ", "\t", " ")
)

// Normalize flattens extracted text: carriage returns and tabs become spaces,
// runs of spaces and of newlines collapse to one, and the result is trimmed.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = crTabReplace.Replace(text)
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
