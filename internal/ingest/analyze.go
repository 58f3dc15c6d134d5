package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	atxHeadingRE      = regexp.MustCompile(`^\s{0,3}#{1,6}\s+\S`)
	numberedHeadingRE = regexp.MustCompile(`^\s*\d+(\.\d+)*[.)]?\s+\S`)
	upperHeadingRE    = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\s\-:]{4,}$`)
)

// StructureAnalysis captures the structural signals that drive strategy
// selection.
type StructureAnalysis struct {
	HasHeadings            bool
	ParagraphCount         int
	AverageParagraphLength int
}

// Analyze inspects sanitized text: paragraphs are double-LF separated blocks,
// the average length is an integer mean, and heading detection stops at the
// first line matching any of the three heading shapes (ATX, numbered,
// fully-uppercase).
func Analyze(text string) StructureAnalysis {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return StructureAnalysis{}
	}

	paragraphs := SplitParagraphs(normalized)
	count := len(paragraphs)
	avg := 0
	if count > 0 {
		total := 0
		for _, p := range paragraphs {
			total += utf8.RuneCountInString(p)
		}
		avg = total / count
	}

	hasHeadings := false
	for _, line := range strings.Split(normalized, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if isHeadingLine(stripped) {
			hasHeadings = true
			break
		}
	}

	return StructureAnalysis{
		HasHeadings:            hasHeadings,
		ParagraphCount:         count,
		AverageParagraphLength: avg,
	}
}

// SplitParagraphs splits on double-LF, trimming each block and discarding
// empties.
func SplitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isHeadingLine(stripped string) bool {
	return atxHeadingRE.MatchString(stripped) ||
		numberedHeadingRE.MatchString(stripped) ||
		upperHeadingRE.MatchString(stripped)
}
