package ingest

import (
	"strings"
	"testing"

	types "github.com/yungbote/raggae-backend/internal/domain"
)

func TestAnalyze_EmptyText(t *testing.T) {
	got := Analyze("   \n  ")
	if got.HasHeadings || got.ParagraphCount != 0 || got.AverageParagraphLength != 0 {
		t.Fatalf("unexpected analysis for blank text: %+v", got)
	}
}

func TestAnalyze_CountsParagraphsAndIntegerMean(t *testing.T) {
	text := "aaaa\n\nbbbbbbb" // lengths 4 and 7 -> mean 5
	got := Analyze(text)
	if got.ParagraphCount != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", got.ParagraphCount)
	}
	if got.AverageParagraphLength != 5 {
		t.Fatalf("expected integer mean 5, got %d", got.AverageParagraphLength)
	}
}

func TestAnalyze_HeadingShapes(t *testing.T) {
	cases := []struct {
		name string
		line string
		want bool
	}{
		{"atx", "# Introduction", true},
		{"atx deep", "###### Notes", true},
		{"atx no space", "#Introduction", false},
		{"numbered", "1. Scope", true},
		{"numbered nested", "2.3.1) Detail", true},
		{"uppercase", "CHAPTER ONE: BEGINNINGS", true},
		{"uppercase too short", "ABC", false},
		{"plain prose", "This is a normal sentence.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Analyze(tc.line + "\n\nbody paragraph here")
			if got.HasHeadings != tc.want {
				t.Fatalf("line %q: expected has_headings=%v, got %v", tc.line, tc.want, got.HasHeadings)
			}
		})
	}
}

func TestSelectStrategy_Table(t *testing.T) {
	cases := []struct {
		name     string
		analysis StructureAnalysis
		want     types.ChunkingStrategy
	}{
		{"headings win", StructureAnalysis{HasHeadings: true, ParagraphCount: 2, AverageParagraphLength: 30}, types.ChunkingHeadingSection},
		{"narrative document", StructureAnalysis{ParagraphCount: 4, AverageParagraphLength: 120}, types.ChunkingParagraph},
		{"short paragraphs still paragraph", StructureAnalysis{ParagraphCount: 2, AverageParagraphLength: 10}, types.ChunkingParagraph},
		{"single block falls back", StructureAnalysis{ParagraphCount: 1, AverageParagraphLength: 20}, types.ChunkingFixedWindow},
		{"empty falls back", StructureAnalysis{}, types.ChunkingFixedWindow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectStrategy(tc.analysis)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSelectStrategy_NeverAutoOrSemantic(t *testing.T) {
	candidates := []StructureAnalysis{
		{HasHeadings: true, ParagraphCount: 1, AverageParagraphLength: 10},
		{ParagraphCount: 4, AverageParagraphLength: 120},
		{ParagraphCount: 1, AverageParagraphLength: 10},
	}
	for _, analysis := range candidates {
		got := SelectStrategy(analysis)
		if got == types.ChunkingAuto || got == types.ChunkingSemantic {
			t.Fatalf("selector returned %s for %+v", got, analysis)
		}
	}
}

func TestAnalyze_HeadingDetectionIgnoresBlankLines(t *testing.T) {
	text := "\n\n   \n" + strings.Repeat("prose line\n", 3) + "\n## Later Heading\n\nmore"
	got := Analyze(text)
	if !got.HasHeadings {
		t.Fatalf("expected heading detection on later line")
	}
}
