package providers

import (
	"context"
	"strings"
	"testing"
)

func TestInMemoryEmbedderIsDeterministic(t *testing.T) {
	e := NewInMemoryEmbedder(1536)
	first, err := e.EmbedTexts(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	second, err := e.EmbedTexts(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range first {
		if len(first[i]) != 1536 {
			t.Fatalf("vector %d has dimension %d", i, len(first[i]))
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d differs between runs at %d", i, j)
			}
		}
	}
	if first[0][0] == first[1][0] && first[0][1] == first[1][1] && first[0][2] == first[1][2] {
		t.Fatal("distinct texts produced identical vector prefixes")
	}
}

func TestInMemoryEmbedderSmallDimension(t *testing.T) {
	e := NewInMemoryEmbedder(8)
	vecs, err := e.EmbedTexts(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs[0]) != 8 {
		t.Fatalf("dimension = %d, want 8", len(vecs[0]))
	}
	for _, v := range vecs[0] {
		if v < 0 || v > 1 {
			t.Fatalf("component %f outside [0,1]", v)
		}
	}
}

func TestInMemoryLLMAnswersFromContext(t *testing.T) {
	l := NewInMemoryLLM()
	prompt := "You are a retrieval-augmented assistant.\nContext:\nThe warehouse ships on Tuesdays.\nUser query: when do you ship?"
	answer, err := l.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(answer, "The warehouse ships on Tuesdays.") {
		t.Fatalf("answer %q does not echo the context", answer)
	}
}

func TestInMemoryLLMWithoutContext(t *testing.T) {
	l := NewInMemoryLLM()
	answer, err := l.Generate(context.Background(), "User query: hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if answer != "I do not know." {
		t.Fatalf("answer = %q", answer)
	}
}

func TestInMemoryLLMStreamMatchesGenerate(t *testing.T) {
	l := NewInMemoryLLM()
	prompt := "Context:\nDogs bark.\nUser query: what do dogs do?"
	var streamed strings.Builder
	full, err := l.Stream(context.Background(), prompt, func(delta string) {
		streamed.WriteString(delta)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if streamed.String() != full {
		t.Fatalf("streamed %q != full %q", streamed.String(), full)
	}
}

func TestContextualEmbedderPrefixes(t *testing.T) {
	base := NewInMemoryEmbedder(32)
	wrapped := NewContextualEmbedder(base)

	plain, _ := base.EmbedTexts(context.Background(), []string{"search_document: report"})
	docs, err := wrapped.EmbedTexts(context.Background(), []string{"report"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range plain[0] {
		if plain[0][i] != docs[0][i] {
			t.Fatal("document prefix was not applied")
		}
	}

	plainQuery, _ := base.EmbedTexts(context.Background(), []string{"search_query: report"})
	query, err := wrapped.EmbedQuery(context.Background(), "report")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	for i := range plainQuery[0] {
		if plainQuery[0][i] != query[i] {
			t.Fatal("query prefix was not applied")
		}
	}
}

// emptyEmbedder reports success without producing any vectors.
type emptyEmbedder struct{}

func (emptyEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (emptyEmbedder) Dimension() int { return 32 }

func TestContextualEmbedderEmptyDelegateResponse(t *testing.T) {
	wrapped := NewContextualEmbedder(emptyEmbedder{})
	vec, err := wrapped.EmbedQuery(context.Background(), "report")
	if err == nil {
		t.Fatal("expected an error when the delegate returns no vectors")
	}
	if vec != nil {
		t.Fatalf("vec = %v, want nil", vec)
	}
}
