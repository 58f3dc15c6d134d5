package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitParentChild_PacksParentsWithGlue(t *testing.T) {
	a := strings.Repeat("a", 900)
	b := strings.Repeat("b", 900)
	c := strings.Repeat("c", 900)

	groups := SplitParentChild([]string{a, b, c}, 2000, 500, 50)
	if len(groups) != 2 {
		t.Fatalf("expected 2 parents, got %d", len(groups))
	}
	if groups[0].Parent != a+"\n\n"+b {
		t.Fatalf("first parent should pack two chunks")
	}
	if groups[1].Parent != c {
		t.Fatalf("second parent should hold the overflow chunk")
	}
}

func TestSplitParentChild_ChildrenRespectSizeAndOverlap(t *testing.T) {
	parentText := strings.Repeat("x", 1200)
	groups := SplitParentChild([]string{parentText}, 2000, 500, 50)
	if len(groups) != 1 {
		t.Fatalf("expected 1 parent, got %d", len(groups))
	}
	children := groups[0].Children
	if len(children) < 2 {
		t.Fatalf("expected multiple children for a 1200-char parent, got %d", len(children))
	}
	for i, child := range children {
		if utf8.RuneCountInString(child) > 500 {
			t.Fatalf("child %d exceeds size: %d", i, utf8.RuneCountInString(child))
		}
	}
	// step = 450, so consecutive children share a 50-char overlap
	if !strings.HasSuffix(children[0], strings.Repeat("x", 50)) {
		t.Fatalf("unexpected first child tail")
	}
}

func TestSplitParentChild_DropsEmptyChunks(t *testing.T) {
	groups := SplitParentChild([]string{"  ", "", "real content"}, 2000, 500, 50)
	if len(groups) != 1 {
		t.Fatalf("expected 1 parent, got %d", len(groups))
	}
	if groups[0].Parent != "real content" {
		t.Fatalf("unexpected parent: %q", groups[0].Parent)
	}
	if len(groups[0].Children) != 1 || groups[0].Children[0] != "real content" {
		t.Fatalf("unexpected children: %#v", groups[0].Children)
	}
}

func TestSplitParentChild_Empty(t *testing.T) {
	if got := SplitParentChild(nil, 2000, 500, 50); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
	if got := SplitParentChild([]string{"", "   "}, 2000, 500, 50); got != nil {
		t.Fatalf("expected nil for blank input, got %#v", got)
	}
}
