package core

import (
	"regexp"
	"strings"
)

var (
	bearerTokenRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-\._~\+\/]+=*`)
	queryKeyRe    = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey)=)[^&\s"']+`)
	kvSecretRe    = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*["']?[^"'\s]+["']?`)
	googleKeyRe   = regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)
	openaiKeyRe   = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}\b`)
	connectionRe  = regexp.MustCompile(`(?i)((?:postgres|postgresql)://)[^@\s]+@`)
)

// RedactString trims, truncates, and scrubs credentials from provider and database messages.
func RedactString(s string) string {
	const maxLen = 512
	s = strings.TrimSpace(s)
	s = connectionRe.ReplaceAllString(s, "$1[REDACTED]@")
	s = queryKeyRe.ReplaceAllString(s, "$1[REDACTED]")
	s = bearerTokenRe.ReplaceAllString(s, "$1[REDACTED]")
	s = kvSecretRe.ReplaceAllString(s, "$1=[REDACTED]")
	s = googleKeyRe.ReplaceAllString(s, "[REDACTED]")
	s = openaiKeyRe.ReplaceAllString(s, "[REDACTED]")
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}

// RedactError applies RedactString to an error, returning an empty string when nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return RedactString(err.Error())
}
