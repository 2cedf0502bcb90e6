package answer

import (
	"regexp"
	"strings"
)

// Line rules: a matching line is removed from the answer.
var lineRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`),
	regexp.MustCompile(`(?i)\bchunk[\s_-]*ids?\b`),
	regexp.MustCompile(`(?i)(^|[\s(\[])id\s*:`),
	regexp.MustCompile(`(?i)^[\s>*\-#(\[]*(context|contexto|passage|passagem|trecho)\s*#?\s*\d+`),
}

// Answers ending in one of these are treated as truncated.
const danglingPunctuation = ",;:"

// Answers ending in one of these phrases are treated as low confidence.
var hedgeSuffixes = []string{
	"i hope this helps",
	"hope this helps",
	"let me know if you need anything else",
	"let me know if you have any other questions",
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i do not know",
	"based on the provided context",
	"based on the context provided",
	"according to the passages",
	"espero ter ajudado",
	"não sei",
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// Sanitize removes lines that leak chunk identifiers or passage labels and
// returns "" when what remains looks truncated or hedged. chunkIDs lists the
// identifiers of the passages given to the model.
func Sanitize(raw string, chunkIDs []string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if dropLine(line, chunkIDs) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	out := strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
	if out == "" || incomplete(out) {
		return ""
	}
	return out
}

func dropLine(line string, chunkIDs []string) bool {
	for _, rule := range lineRules {
		if rule.MatchString(line) {
			return true
		}
	}
	for _, id := range chunkIDs {
		if id != "" && strings.Contains(line, id) {
			return true
		}
	}
	return false
}

func incomplete(text string) bool {
	if strings.ContainsRune(danglingPunctuation, lastRune(text)) {
		return true
	}
	tail := strings.ToLower(strings.TrimRight(text, " .!…\n"))
	for _, hedge := range hedgeSuffixes {
		if strings.HasSuffix(tail, hedge) {
			return true
		}
	}
	return false
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
