// Package providers holds the embedding, chat-completion and reranker
// backends a project can be wired to. Every concrete client validates
// embedding dimensions against the configured store dimension and maps
// transport failures onto domain error types so callers never see raw
// provider payloads.
package providers

import (
	"context"

	"github.com/yungbote/raggae-backend/internal/domain"
)

// Embedder turns texts into fixed-dimension vectors. Implementations must
// return one vector per input, in order, and reject vectors whose length
// differs from Dimension.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// LLM generates a chat answer from a fully built prompt. Stream delivers
// token deltas through onDelta and returns the accumulated text.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error)
}

// Reranker reorders retrieved chunks by relevance to the query and keeps the
// top k.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []domain.RetrievedChunk, topK int) ([]domain.RetrievedChunk, error)
}

// validateDimensions checks every vector against the expected dimension
// before anything touches the store.
func validateDimensions(expected int, vectors [][]float32) error {
	if expected <= 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != expected {
			return domain.NewEmbeddingError("Invalid embedding dimension: expected %d, got %d", expected, len(v))
		}
	}
	return nil
}
