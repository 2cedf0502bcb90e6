package answer

import (
	"strconv"
	"strings"
)

const instructions = `You answer questions using ONLY the passages below.
- Be concise and answer in the language of the question.
- Do not mention passages, contexts, chunk labels, or identifiers.
- Do not invent facts. If the passages do not contain the answer, reply exactly: ` + NotFoundAnswer

// BuildPrompt assembles instructions, passages, and the question. Each passage
// is cut to maxContextChars divided evenly across passages; a non-positive
// budget disables truncation.
func BuildPrompt(question string, passages []string, maxContextChars int) string {
	perPassage := 0
	if maxContextChars > 0 && len(passages) > 0 {
		perPassage = max(1, maxContextChars/len(passages))
	}
	var b strings.Builder
	b.WriteString(instructions)
	for i, passage := range passages {
		b.WriteString("\n\nPassage ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(":\n")
		b.WriteString(truncateRunes(passage, perPassage))
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
