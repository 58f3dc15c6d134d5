package providers

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/observability"
)

const (
	defaultDocumentPrefix = "search_document: "
	defaultQueryPrefix    = "search_query: "
)

// ContextualEmbedder wraps another Embedder and prepends task prefixes in the
// style of instruction-tuned embedding models (E5, BGE, nomic): documents and
// queries get distinct prefixes so their vectors separate better.
type ContextualEmbedder struct {
	delegate       Embedder
	documentPrefix string
	queryPrefix    string
}

func NewContextualEmbedder(delegate Embedder) *ContextualEmbedder {
	return &ContextualEmbedder{
		delegate:       delegate,
		documentPrefix: defaultDocumentPrefix,
		queryPrefix:    defaultQueryPrefix,
	}
}

func (e *ContextualEmbedder) Dimension() int { return e.delegate.Dimension() }

// EmbedTexts embeds document texts with the document prefix.
func (e *ContextualEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.documentPrefix + t
	}
	ctx, span := observability.StartSpan(ctx, "embedding.texts",
		attribute.Int("embedding.batch_size", len(prefixed)),
	)
	vectors, err := e.delegate.EmbedTexts(ctx, prefixed)
	observability.EndSpan(span, err)
	return vectors, err
}

// EmbedQuery embeds a single query with the query prefix.
func (e *ContextualEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, span := observability.StartSpan(ctx, "embedding.query")
	vectors, err := e.delegate.EmbedTexts(ctx, []string{e.queryPrefix + query})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.NewEmbeddingError("Embedding backend returned no vector for query")
	}
	return vectors[0], nil
}
