package ingest

import (
	"regexp"
	"strings"
)

var multiNewlineRE = regexp.MustCompile(`\n{3,}`)

// Sanitize normalizes raw extracted text: CRLF/CR become LF, NBSP becomes a
// plain space, control characters other than LF and TAB are dropped, every
// line is right-trimmed, runs of three or more newlines collapse to two, and
// the result is trimmed. Idempotent.
func Sanitize(text string) string {
	normalized := strings.NewReplacer("\r\n", "\n", "\r", "\n", " ", " ").Replace(text)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r == '\n' || r == '\t' || r >= 32 {
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	collapsed := multiNewlineRE.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(collapsed)
}
