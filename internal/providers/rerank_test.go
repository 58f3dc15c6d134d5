package providers

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/domain"
)

func chunkWith(content string, score float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{ChunkID: uuid.New(), Content: content, Score: score}
}

func TestInMemoryRerankerOrdersByOverlap(t *testing.T) {
	r := NewInMemoryReranker()
	chunks := []domain.RetrievedChunk{
		chunkWith("weather report for tuesday", 0),
		chunkWith("invoice totals for march", 0),
		chunkWith("tuesday weather looks sunny", 0),
	}
	out, err := r.Rerank(context.Background(), "tuesday weather", chunks, 2)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	for _, c := range out {
		if c.Content == "invoice totals for march" {
			t.Fatal("irrelevant chunk survived top-2")
		}
	}
	if out[0].Score < out[1].Score {
		t.Fatal("results not sorted by score descending")
	}
}

func TestInMemoryRerankerEmptyInput(t *testing.T) {
	r := NewInMemoryReranker()
	out, err := r.Rerank(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestMMRRerankerPenalizesDuplicates(t *testing.T) {
	r := NewMMRReranker(DefaultMMRLambda)
	chunks := []domain.RetrievedChunk{
		chunkWith("shipping policy details for europe", 0.9),
		chunkWith("shipping policy details for europe", 0.9),
		chunkWith("refund policy for damaged goods", 0.6),
	}
	embeddings := [][]float32{
		{1, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	}
	out := r.RerankWithEmbeddings(chunks, embeddings, []float32{1, 0, 0}, 2)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Content == out[1].Content {
		t.Fatal("mmr selected two identical chunks")
	}
}

func TestMMRRerankerFirstPickIsMostRelevant(t *testing.T) {
	r := NewMMRReranker(DefaultMMRLambda)
	chunks := []domain.RetrievedChunk{
		chunkWith("low relevance", 0.2),
		chunkWith("high relevance", 0.95),
	}
	embeddings := [][]float32{{0, 1}, {1, 0}}
	out := r.RerankWithEmbeddings(chunks, embeddings, []float32{1, 0}, 1)
	if len(out) != 1 || out[0].Content != "high relevance" {
		t.Fatalf("out = %+v", out)
	}
	// Relevance is normalized so the top pick carries score 1.
	if out[0].Score != 1 {
		t.Fatalf("score = %f, want 1", out[0].Score)
	}
}

func TestMMRRerankerLexicalFallback(t *testing.T) {
	r := NewMMRReranker(DefaultMMRLambda)
	chunks := []domain.RetrievedChunk{
		chunkWith("database migration steps", 0),
		chunkWith("cooking recipes for pasta", 0),
	}
	out, err := r.Rerank(context.Background(), "database migration", chunks, 1)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(out) != 1 || out[0].Content != "database migration steps" {
		t.Fatalf("out = %+v", out)
	}
}

func TestCosine32(t *testing.T) {
	if got := cosine32([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors cosine = %f", got)
	}
	if got := cosine32([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors cosine = %f", got)
	}
	if got := cosine32(nil, []float32{1}); got != 0 {
		t.Fatalf("empty vector cosine = %f", got)
	}
	if got := cosine32([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("mismatched lengths cosine = %f", got)
	}
}
