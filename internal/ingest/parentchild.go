package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultParentSize   = 2000
	DefaultChildSize    = 500
	DefaultChildOverlap = 50
)

// ParentGroup is one parent context block and the child windows carved out
// of it. Children get embedded; the parent is what reaches the LLM.
type ParentGroup struct {
	Parent   string
	Children []string
}

// SplitParentChild re-groups flat chunks into parents of up to parentSize
// (glued with "\n\n"), then slices each parent into overlapping children.
func SplitParentChild(chunks []string, parentSize, childSize, childOverlap int) []ParentGroup {
	if parentSize <= 0 {
		parentSize = DefaultParentSize
	}
	if childSize <= 0 {
		childSize = DefaultChildSize
	}
	if childOverlap < 0 {
		childOverlap = 0
	}

	nonEmpty := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}

	childChunker := NewChunker(childSize, childOverlap)

	var groups []ParentGroup
	var currentParts []string
	currentLen := 0
	emit := func() {
		if len(currentParts) == 0 {
			return
		}
		parent := strings.Join(currentParts, "\n\n")
		children := childChunker.chunkFixedWindow(parent)
		if len(children) == 0 {
			children = []string{parent}
		}
		groups = append(groups, ParentGroup{Parent: parent, Children: children})
		currentParts = nil
		currentLen = 0
	}

	for _, chunk := range nonEmpty {
		chunkLen := utf8.RuneCountInString(chunk)
		separatorLen := 0
		if len(currentParts) > 0 {
			separatorLen = 2
		}
		if len(currentParts) > 0 && currentLen+separatorLen+chunkLen > parentSize {
			emit()
			currentParts = []string{chunk}
			currentLen = chunkLen
			continue
		}
		currentParts = append(currentParts, chunk)
		currentLen += separatorLen + chunkLen
	}
	emit()

	return groups
}
