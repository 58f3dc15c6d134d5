package providers

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/workerpool"
)

// CrossEncoderReranker scores (query, chunk) pairs against an external
// cross-encoder inference service. Scoring is offloaded to the worker pool so
// chat goroutines are never blocked on inference.
type CrossEncoderReranker struct {
	caller *jsonCaller
	url    string
	model  string
	pool   *workerpool.Pool
	log    *logger.Logger
}

func NewCrossEncoderReranker(inferenceURL, model string, timeout time.Duration, pool *workerpool.Pool, log *logger.Logger) *CrossEncoderReranker {
	return &CrossEncoderReranker{
		caller: &jsonCaller{httpClient: &http.Client{Timeout: timeout}},
		url:    strings.TrimRight(inferenceURL, "/") + "/rerank",
		model:  model,
		pool:   pool,
		log:    log.With("reranker", "cross_encoder"),
	}
}

type rerankRequest struct {
	Model string   `json:"model"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, chunks []domain.RetrievedChunk, topK int) ([]domain.RetrievedChunk, error) {
	if len(chunks) == 0 || topK <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	var resp rerankResponse
	call := func() error {
		return r.caller.do(ctx, http.MethodPost, r.url, rerankRequest{Model: r.model, Query: query, Texts: texts}, &resp)
	}
	var err error
	if r.pool != nil {
		err = r.pool.Run(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Scores) != len(chunks) {
		return nil, domain.NewLLMError("reranker returned %d scores for %d chunks", len(resp.Scores), len(chunks))
	}
	scored := make([]domain.RetrievedChunk, len(chunks))
	for i, c := range chunks {
		c.Score = resp.Scores[i]
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// InMemoryReranker scores by Jaccard word overlap between the query and each
// chunk. Deterministic stand-in for tests and dev.
type InMemoryReranker struct{}

func NewInMemoryReranker() *InMemoryReranker { return &InMemoryReranker{} }

func (r *InMemoryReranker) Rerank(_ context.Context, query string, chunks []domain.RetrievedChunk, topK int) ([]domain.RetrievedChunk, error) {
	if len(chunks) == 0 || topK <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	queryWords := wordSet(query)
	scored := make([]domain.RetrievedChunk, len(chunks))
	for i, c := range chunks {
		chunkWords := wordSet(c.Content)
		c.Score = jaccard(queryWords, chunkWords)
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// MMRReranker applies Maximal Marginal Relevance:
//
//	mmr = lambda * relevance - (1 - lambda) * max(sim(candidate, selected))
//
// With lambda 0.85 relevance dominates while near-duplicate chunks are still
// pushed out of the context window.
type MMRReranker struct {
	lambda float64
}

const DefaultMMRLambda = 0.85

func NewMMRReranker(lambda float64) *MMRReranker {
	return &MMRReranker{lambda: math.Max(0, math.Min(1, lambda))}
}

func (r *MMRReranker) Rerank(_ context.Context, query string, chunks []domain.RetrievedChunk, topK int) ([]domain.RetrievedChunk, error) {
	if len(chunks) == 0 || topK <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	return r.rerankLexical(query, chunks, topK), nil
}

// RerankWithEmbeddings runs MMR over vector similarities; the retrieval score
// serves as the relevance signal, normalized to [0,1].
func (r *MMRReranker) RerankWithEmbeddings(chunks []domain.RetrievedChunk, embeddings [][]float32, queryEmbedding []float32, topK int) []domain.RetrievedChunk {
	if len(chunks) == 0 || topK <= 0 || len(embeddings) != len(chunks) {
		return []domain.RetrievedChunk{}
	}
	relevance := make([]float64, len(chunks))
	maxRel := 0.0
	for i := range chunks {
		if chunks[i].Score > 0 {
			relevance[i] = chunks[i].Score
		} else {
			relevance[i] = cosine32(queryEmbedding, embeddings[i])
		}
		if relevance[i] > maxRel {
			maxRel = relevance[i]
		}
	}
	if maxRel > 0 {
		for i := range relevance {
			relevance[i] /= maxRel
		}
	}

	selected := r.selectMMR(len(chunks), topK, relevance, func(i, j int) float64 {
		return cosine32(embeddings[i], embeddings[j])
	})

	out := make([]domain.RetrievedChunk, 0, len(selected))
	for _, idx := range selected {
		c := chunks[idx]
		c.Score = relevance[idx]
		out = append(out, c)
	}
	return out
}

func (r *MMRReranker) rerankLexical(query string, chunks []domain.RetrievedChunk, topK int) []domain.RetrievedChunk {
	queryWords := wordSet(query)
	relevance := make([]float64, len(chunks))
	for i := range chunks {
		chunkWords := wordSet(chunks[i].Content)
		overlap := 0
		for w := range chunkWords {
			if queryWords[w] {
				overlap++
			}
		}
		denom := len(queryWords)
		if denom == 0 {
			denom = 1
		}
		relevance[i] = float64(overlap) / float64(denom)
	}

	selected := r.selectMMR(len(chunks), topK, relevance, func(i, j int) float64 {
		return jaccard(wordSet(chunks[i].Content), wordSet(chunks[j].Content))
	})

	out := make([]domain.RetrievedChunk, 0, len(selected))
	for _, idx := range selected {
		out = append(out, chunks[idx])
	}
	return out
}

// selectMMR greedily picks indices maximizing the MMR objective.
func (r *MMRReranker) selectMMR(n, topK int, relevance []float64, sim func(i, j int) float64) []int {
	selected := make([]int, 0, topK)
	remaining := make([]int, 0, n)
	for i := 0; i < n; i++ {
		remaining = append(remaining, i)
	}
	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestPos := -1
		bestScore := math.Inf(-1)
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if v := sim(idx, s); v > maxSim {
					maxSim = v
				}
			}
			score := r.lambda*relevance[idx] - (1-r.lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = idx
				bestPos = pos
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, bestIdx)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
