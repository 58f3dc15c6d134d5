package services

import (
	"reflect"
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"The quick brown fox jumped over the fence and the dog was not amused by this at all.", "en"},
		{"Les documents sont dans le dossier pour que nous puissions les retrouver avec une recherche.", "fr"},
		{"Der Bericht ist fertig und die Ergebnisse sind nicht das, was wir mit einer Prognose erwartet haben.", "de"},
		{"short", "unknown"},
		{"xyzzy plugh frobnicate quux blorb fizzle", "unknown"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Errorf("DetectLanguage(%.30q...) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "The pipeline chunks documents. The pipeline embeds chunks. Retrieval ranks chunks."
	got := ExtractKeywords(text, 3)
	want := []string{"chunks", "pipeline", "documents"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractKeywords = %v, want %v", got, want)
	}

	if got := ExtractKeywords("", 5); len(got) != 0 {
		t.Errorf("empty text should yield no keywords, got %v", got)
	}
	if got := ExtractKeywords("some text here", 0); len(got) != 0 {
		t.Errorf("zero budget should yield no keywords, got %v", got)
	}
}

func TestExtractKeywordsSkipsStopwordsAndShortTokens(t *testing.T) {
	got := ExtractKeywords("the and for it is a retrieval retrieval engine", 10)
	for _, kw := range got {
		if keywordStopwords[kw] {
			t.Errorf("stopword %q leaked into keywords", kw)
		}
		if len(kw) < 3 {
			t.Errorf("short token %q leaked into keywords", kw)
		}
	}
	if len(got) == 0 || got[0] != "retrieval" {
		t.Fatalf("most frequent keyword should come first, got %v", got)
	}
}
