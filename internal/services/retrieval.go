package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/observability"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

const (
	// DefaultVectorWeight is alpha in the weighted hybrid fusion.
	DefaultVectorWeight   = 0.6
	DefaultFulltextWeight = 0.4

	DefaultCandidateMultiplier = 5

	// rrfK dampens rank contributions in reciprocal rank fusion.
	rrfK = 60

	FusionWeighted = "weighted"
	FusionRRF      = "rrf"
)

// MetadataFilters narrows retrieval to chunks whose metadata_json matches.
// Zero values mean "no filter".
type MetadataFilters struct {
	DocumentTypes      []string
	Language           string
	SourceType         string
	ProcessingStrategy string
	Tags               []string
}

// RetrievalOptions tunes a single retrieval call. Limit is the final result
// count; the candidate pool is Limit x CandidateMultiplier.
type RetrievalOptions struct {
	Strategy            types.RetrievalStrategy
	Limit               int
	Offset              int
	MinScore            float64
	CandidateMultiplier int
	VectorWeight        float64
	FulltextWeight      float64
	FusionMethod        string
	ContextWindowSize   int
	Filters             *MetadataFilters
}

// QueryResult is a full retrieval pass: scored chunks after neighbor
// expansion and parent resolution, plus the strategy that actually ran.
type QueryResult struct {
	Chunks          []types.RetrievedChunk  `json:"chunks"`
	StrategyUsed    types.RetrievalStrategy `json:"strategy_used"`
	ExecutionTimeMS int64                   `json:"execution_time_ms"`
}

// RetrievalService runs vector, full-text and hybrid search over a project's
// chunks. All strategies exclude parent rows; parents re-enter via
// SwapParents after scoring.
type RetrievalService struct {
	db     *gorm.DB
	chunks repos.ChunkRepo
	log    *logger.Logger
}

func NewRetrievalService(db *gorm.DB, chunks repos.ChunkRepo, log *logger.Logger) *RetrievalService {
	return &RetrievalService{db: db, chunks: chunks, log: log.With("service", "RetrievalService")}
}

// ResolveStrategy maps "auto" onto a concrete strategy: quoted phrases and
// short technical queries favor exact full-text matching, everything else
// goes hybrid. Non-auto values pass through.
func ResolveStrategy(requested string, queryText string) types.RetrievalStrategy {
	switch types.RetrievalStrategy(requested) {
	case types.RetrievalVector, types.RetrievalFulltext, types.RetrievalHybrid:
		return types.RetrievalStrategy(requested)
	}
	hasQuotes := strings.ContainsAny(queryText, `"'`)
	tokens := strings.Fields(queryText)
	isTechnical := strings.ContainsAny(queryText, "_-")
	if !isTechnical {
		for _, token := range tokens {
			if len(token) > 1 && token == strings.ToUpper(token) && strings.ToLower(token) != token {
				isTechnical = true
				break
			}
		}
	}
	isShort := len(tokens) <= 3
	if hasQuotes || (isTechnical && isShort) {
		return types.RetrievalFulltext
	}
	return types.RetrievalHybrid
}

type retrievalRow struct {
	ChunkID          uuid.UUID  `gorm:"column:chunk_id"`
	DocumentID       uuid.UUID  `gorm:"column:document_id"`
	DocumentFileName string     `gorm:"column:document_file_name"`
	Content          string     `gorm:"column:content"`
	ChunkIndex       int        `gorm:"column:chunk_index"`
	ChunkLevel       string     `gorm:"column:chunk_level"`
	ParentChunkID    *uuid.UUID `gorm:"column:parent_chunk_id"`
	VectorScore      float64    `gorm:"column:vector_score"`
	FulltextScore    float64    `gorm:"column:fulltext_score"`
	FinalScore       float64    `gorm:"column:final_score"`
}

// Retrieve executes the strategy and returns scored chunks ordered by score
// desc, chunk_index asc, chunk_id lexicographic.
func (s *RetrievalService) Retrieve(dbc dbctx.Context, projectID uuid.UUID, queryText string, queryEmbedding []float32, opts RetrievalOptions) ([]types.RetrievedChunk, error) {
	if opts.Limit <= 0 {
		opts.Limit = types.DefaultRetrievalTopK
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if opts.VectorWeight == 0 && opts.FulltextWeight == 0 {
		opts.VectorWeight, opts.FulltextWeight = DefaultVectorWeight, DefaultFulltextWeight
	}
	strategy := ResolveStrategy(string(opts.Strategy), queryText)

	candidateLimit := opts.Limit * opts.CandidateMultiplier
	if candidateLimit < 1 {
		candidateLimit = 1
	}

	metadataWhere, metadataParams := buildMetadataFilters(opts.Filters)

	var sql string
	params := map[string]interface{}{
		"project_id":      projectID,
		"query_text":      queryText,
		"candidate_limit": candidateLimit,
		"min_score":       opts.MinScore,
		"limit":           opts.Limit,
		"offset":          opts.Offset,
	}
	switch strategy {
	case types.RetrievalVector:
		sql = vectorSQL(metadataWhere)
		params["query_embedding"] = vectorLiteral(queryEmbedding)
	case types.RetrievalFulltext:
		sql = fulltextSQL(metadataWhere)
	default:
		params["query_embedding"] = vectorLiteral(queryEmbedding)
		if opts.FusionMethod == FusionRRF {
			sql = rrfSQL(metadataWhere)
		} else {
			sql = weightedSQL(metadataWhere)
			params["vector_weight"] = opts.VectorWeight
			params["fulltext_weight"] = opts.FulltextWeight
		}
	}
	for k, v := range metadataParams {
		params[k] = v
	}

	ctx, span := observability.StartSpan(dbc.Ctx, "retrieval.search",
		attribute.String("retrieval.strategy", string(strategy)),
		attribute.String("retrieval.fusion", opts.FusionMethod),
		attribute.Int("retrieval.limit", opts.Limit),
	)
	txx := dbc.Tx
	if txx == nil {
		txx = s.db
	}
	var rows []retrievalRow
	if err := txx.WithContext(ctx).Raw(sql, params).Scan(&rows).Error; err != nil {
		observability.EndSpan(span, err)
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}

	out := dedupeByChunkID(rows)
	SortRetrieved(out)
	span.SetAttributes(attribute.Int("retrieval.results", len(out)))
	observability.EndSpan(span, nil)
	return out, nil
}

// Query runs the whole retrieval pass for a caller that wants final context:
// strategy resolution, the scored search, neighbor expansion and child-to-
// parent resolution, with wall time measured across all of it.
func (s *RetrievalService) Query(dbc dbctx.Context, projectID uuid.UUID, queryText string, queryEmbedding []float32, opts RetrievalOptions) (*QueryResult, error) {
	start := time.Now()
	strategy := ResolveStrategy(string(opts.Strategy), queryText)
	opts.Strategy = strategy

	chunks, err := s.Retrieve(dbc, projectID, queryText, queryEmbedding, opts)
	if err != nil {
		return nil, err
	}
	if chunks, err = s.ExpandContextWindow(dbc, chunks, opts.ContextWindowSize); err != nil {
		return nil, err
	}
	if chunks, err = s.SwapParents(dbc, chunks); err != nil {
		return nil, err
	}
	return &QueryResult{
		Chunks:          chunks,
		StrategyUsed:    strategy,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// vectorSQL scores by raw cosine similarity (1 - distance). Ordering is on
// distance so the embedding index can serve the scan.
func vectorSQL(metadataWhere string) string {
	return `
SELECT
    c.id AS chunk_id,
    c.document_id AS document_id,
    d.file_name AS document_file_name,
    c.content AS content,
    c.chunk_index AS chunk_index,
    c.chunk_level AS chunk_level,
    c.parent_chunk_id AS parent_chunk_id,
    1 - (c.embedding <=> CAST(@query_embedding AS vector)) AS vector_score,
    0.0 AS fulltext_score,
    1 - (c.embedding <=> CAST(@query_embedding AS vector)) AS final_score
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.project_id = @project_id
  AND c.embedding IS NOT NULL
  AND c.chunk_level <> 'parent'
  ` + metadataWhere + `
  AND 1 - (c.embedding <=> CAST(@query_embedding AS vector)) >= @min_score
ORDER BY c.embedding <=> CAST(@query_embedding AS vector) ASC
LIMIT @limit
OFFSET @offset`
}

// fulltextSQL scores by raw ts_rank_cd over a 'simple' tsvector.
func fulltextSQL(metadataWhere string) string {
	return `
SELECT
    c.id AS chunk_id,
    c.document_id AS document_id,
    d.file_name AS document_file_name,
    c.content AS content,
    c.chunk_index AS chunk_index,
    c.chunk_level AS chunk_level,
    c.parent_chunk_id AS parent_chunk_id,
    0.0 AS vector_score,
    ts_rank_cd(
        to_tsvector('simple', c.content),
        plainto_tsquery('simple', @query_text)
    ) AS fulltext_score,
    ts_rank_cd(
        to_tsvector('simple', c.content),
        plainto_tsquery('simple', @query_text)
    ) AS final_score
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.project_id = @project_id
  AND c.chunk_level <> 'parent'
  ` + metadataWhere + `
  AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', @query_text)
  AND ts_rank_cd(
      to_tsvector('simple', c.content),
      plainto_tsquery('simple', @query_text)
  ) >= @min_score
ORDER BY final_score DESC
LIMIT @limit
OFFSET @offset`
}

// fusionCandidate carries one chunk's raw per-list scores into fuseWeighted.
type fusionCandidate struct {
	ChunkID       uuid.UUID
	VectorScore   float64
	FulltextScore float64
}

// fusionResult is a fused candidate with max-scaled per-list scores.
type fusionResult struct {
	ChunkID       uuid.UUID
	VectorScore   float64
	FulltextScore float64
	Score         float64
}

// fuseWeighted is the in-process counterpart of weightedSQL: each list is
// scaled by its maximum, the scaled scores combine as
// vectorWeight*vector + fulltextWeight*fulltext, and rows under minScore
// drop. Results come back ordered by fused score descending.
func fuseWeighted(candidates []fusionCandidate, vectorWeight, fulltextWeight, minScore float64) []fusionResult {
	var maxVector, maxFulltext float64
	for _, c := range candidates {
		if c.VectorScore > maxVector {
			maxVector = c.VectorScore
		}
		if c.FulltextScore > maxFulltext {
			maxFulltext = c.FulltextScore
		}
	}
	out := make([]fusionResult, 0, len(candidates))
	for _, c := range candidates {
		var vec, fts float64
		if maxVector > 0 {
			vec = c.VectorScore / maxVector
		}
		if maxFulltext > 0 {
			fts = c.FulltextScore / maxFulltext
		}
		score := vectorWeight*vec + fulltextWeight*fts
		if score < minScore {
			continue
		}
		out = append(out, fusionResult{ChunkID: c.ChunkID, VectorScore: vec, FulltextScore: fts, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// weightedSQL fuses max-scaled vector and full-text scores by weighted sum.
// Parent rows never participate directly; only embedded levels are searched.
func weightedSQL(metadataWhere string) string {
	return `
WITH vector_search AS (
    SELECT
        c.id AS chunk_id,
        c.document_id AS document_id,
        d.file_name AS document_file_name,
        c.content AS content,
        c.chunk_index AS chunk_index,
        c.chunk_level AS chunk_level,
        c.parent_chunk_id AS parent_chunk_id,
        1 - (c.embedding <=> CAST(@query_embedding AS vector)) AS vector_score
    FROM document_chunks c
    JOIN documents d ON d.id = c.document_id
    WHERE d.project_id = @project_id
      AND c.embedding IS NOT NULL
      AND c.chunk_level <> 'parent'
      ` + metadataWhere + `
    ORDER BY c.embedding <=> CAST(@query_embedding AS vector) ASC
    LIMIT @candidate_limit
),
fulltext_search AS (
    SELECT
        c.id AS chunk_id,
        ts_rank_cd(
            to_tsvector('simple', c.content),
            plainto_tsquery('simple', @query_text)
        ) AS fulltext_score
    FROM document_chunks c
    JOIN documents d ON d.id = c.document_id
    WHERE d.project_id = @project_id
      AND c.chunk_level <> 'parent'
      ` + metadataWhere + `
      AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', @query_text)
    ORDER BY fulltext_score DESC
    LIMIT @candidate_limit
),
combined AS (
    SELECT
        v.chunk_id,
        v.document_id,
        v.document_file_name,
        v.content,
        v.chunk_index,
        v.chunk_level,
        v.parent_chunk_id,
        v.vector_score,
        COALESCE(f.fulltext_score, 0.0) AS fulltext_score
    FROM vector_search v
    LEFT JOIN fulltext_search f ON f.chunk_id = v.chunk_id
    UNION ALL
    SELECT
        f.chunk_id,
        c.document_id,
        d.file_name AS document_file_name,
        c.content,
        c.chunk_index,
        c.chunk_level,
        c.parent_chunk_id,
        0.0 AS vector_score,
        f.fulltext_score
    FROM fulltext_search f
    JOIN document_chunks c ON c.id = f.chunk_id
    JOIN documents d ON d.id = c.document_id
    LEFT JOIN vector_search v ON v.chunk_id = f.chunk_id
    WHERE v.chunk_id IS NULL
),
maxima AS (
    SELECT
        MAX(vector_score) AS max_vector_score,
        MAX(fulltext_score) AS max_fulltext_score
    FROM combined
),
scored AS (
    SELECT
        c.chunk_id,
        c.document_id,
        c.document_file_name,
        c.content,
        c.chunk_index,
        c.chunk_level,
        c.parent_chunk_id,
        COALESCE(c.vector_score / NULLIF(m.max_vector_score, 0), 0.0)
            AS normalized_vector_score,
        COALESCE(c.fulltext_score / NULLIF(m.max_fulltext_score, 0), 0.0)
            AS normalized_fulltext_score
    FROM combined c
    CROSS JOIN maxima m
)
SELECT
    chunk_id,
    document_id,
    document_file_name,
    content,
    chunk_index,
    chunk_level,
    parent_chunk_id,
    normalized_vector_score AS vector_score,
    normalized_fulltext_score AS fulltext_score,
    (
        (normalized_vector_score * @vector_weight)
        + (normalized_fulltext_score * @fulltext_weight)
    ) AS final_score
FROM scored
WHERE (
    (normalized_vector_score * @vector_weight)
    + (normalized_fulltext_score * @fulltext_weight)
) >= @min_score
ORDER BY final_score DESC
LIMIT @limit
OFFSET @offset`
}

// rrfSQL fuses by reciprocal rank: 1/(k+rank) per list, summed. Fused scores
// top out near 2/(k+1), roughly 0.033 with k=60, so min_score values tuned
// for the cosine-scale weighted fusion (project default 0.3) filter out every
// RRF row; callers selecting rrf should pass a min_score on the RRF scale.
func rrfSQL(metadataWhere string) string {
	return `
WITH vector_search AS (
    SELECT
        c.id AS chunk_id,
        c.document_id AS document_id,
        d.file_name AS document_file_name,
        c.content AS content,
        c.chunk_index AS chunk_index,
        c.chunk_level AS chunk_level,
        c.parent_chunk_id AS parent_chunk_id,
        1 - (c.embedding <=> CAST(@query_embedding AS vector)) AS vector_score,
        ROW_NUMBER() OVER (
            ORDER BY c.embedding <=> CAST(@query_embedding AS vector) ASC
        ) AS vector_rank
    FROM document_chunks c
    JOIN documents d ON d.id = c.document_id
    WHERE d.project_id = @project_id
      AND c.embedding IS NOT NULL
      AND c.chunk_level <> 'parent'
      ` + metadataWhere + `
    ORDER BY c.embedding <=> CAST(@query_embedding AS vector) ASC
    LIMIT @candidate_limit
),
fulltext_search AS (
    SELECT
        c.id AS chunk_id,
        ts_rank_cd(
            to_tsvector('simple', c.content),
            plainto_tsquery('simple', @query_text)
        ) AS fulltext_score,
        ROW_NUMBER() OVER (
            ORDER BY ts_rank_cd(
                to_tsvector('simple', c.content),
                plainto_tsquery('simple', @query_text)
            ) DESC
        ) AS fulltext_rank
    FROM document_chunks c
    JOIN documents d ON d.id = c.document_id
    WHERE d.project_id = @project_id
      AND c.chunk_level <> 'parent'
      ` + metadataWhere + `
      AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', @query_text)
    ORDER BY fulltext_score DESC
    LIMIT @candidate_limit
),
combined AS (
    SELECT
        v.chunk_id,
        v.document_id,
        v.document_file_name,
        v.content,
        v.chunk_index,
        v.chunk_level,
        v.parent_chunk_id,
        v.vector_score,
        COALESCE(f.fulltext_score, 0.0) AS fulltext_score,
        (1.0 / (` + strconv.Itoa(rrfK) + ` + v.vector_rank))
            + COALESCE(1.0 / (` + strconv.Itoa(rrfK) + ` + f.fulltext_rank), 0.0) AS final_score
    FROM vector_search v
    LEFT JOIN fulltext_search f ON f.chunk_id = v.chunk_id
    UNION ALL
    SELECT
        f.chunk_id,
        c.document_id,
        d.file_name AS document_file_name,
        c.content,
        c.chunk_index,
        c.chunk_level,
        c.parent_chunk_id,
        0.0 AS vector_score,
        f.fulltext_score,
        1.0 / (` + strconv.Itoa(rrfK) + ` + f.fulltext_rank) AS final_score
    FROM fulltext_search f
    JOIN document_chunks c ON c.id = f.chunk_id
    JOIN documents d ON d.id = c.document_id
    LEFT JOIN vector_search v ON v.chunk_id = f.chunk_id
    WHERE v.chunk_id IS NULL
)
SELECT
    chunk_id,
    document_id,
    document_file_name,
    content,
    chunk_index,
    chunk_level,
    parent_chunk_id,
    vector_score,
    fulltext_score,
    final_score
FROM combined
WHERE final_score >= @min_score
ORDER BY final_score DESC
LIMIT @limit
OFFSET @offset`
}

// buildMetadataFilters renders optional metadata_json predicates. jsonb
// containment on tags uses jsonb_exists_any so no operator placeholders leak
// into the query text.
func buildMetadataFilters(filters *MetadataFilters) (string, map[string]interface{}) {
	if filters == nil {
		return "", nil
	}
	var clauses []string
	params := map[string]interface{}{}

	if len(filters.DocumentTypes) > 0 {
		clauses = append(clauses, "(c.metadata_json->>'document_type') = ANY(ARRAY[@document_type])")
		params["document_type"] = filters.DocumentTypes
	}
	if filters.Language != "" {
		clauses = append(clauses, "(c.metadata_json->>'language') = @language")
		params["language"] = filters.Language
	}
	if filters.SourceType != "" {
		clauses = append(clauses, "(c.metadata_json->>'source_type') = @source_type")
		params["source_type"] = filters.SourceType
	}
	if filters.ProcessingStrategy != "" {
		clauses = append(clauses, "(c.metadata_json->>'processing_strategy') = @processing_strategy")
		params["processing_strategy"] = filters.ProcessingStrategy
	}
	if len(filters.Tags) > 0 {
		clauses = append(clauses, "jsonb_exists_any(c.metadata_json->'tags', ARRAY[@tags]::text[])")
		params["tags"] = filters.Tags
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), params
}

func vectorLiteral(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func dedupeByChunkID(rows []retrievalRow) []types.RetrievedChunk {
	best := map[uuid.UUID]types.RetrievedChunk{}
	for _, row := range rows {
		idx := row.ChunkIndex
		vec := row.VectorScore
		fts := row.FulltextScore
		candidate := types.RetrievedChunk{
			ChunkID:          row.ChunkID,
			DocumentID:       row.DocumentID,
			DocumentFileName: row.DocumentFileName,
			Content:          row.Content,
			Score:            row.FinalScore,
			ChunkIndex:       &idx,
			VectorScore:      &vec,
			FulltextScore:    &fts,
			ChunkLevel:       types.ChunkLevel(row.ChunkLevel),
			ParentChunkID:    row.ParentChunkID,
		}
		if prev, ok := best[row.ChunkID]; !ok || candidate.Score > prev.Score {
			best[row.ChunkID] = candidate
		}
	}
	out := make([]types.RetrievedChunk, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

// ExpandContextWindow pulls in up to window neighbor chunks on each side of
// every hit so the prompt carries surrounding prose. Child hits are skipped
// because their context comes from the parent swap, not from neighbors.
// Neighbors arrive with score 0 and the merged set is ordered by
// (document, chunk_index).
func (s *RetrievalService) ExpandContextWindow(dbc dbctx.Context, chunks []types.RetrievedChunk, window int) ([]types.RetrievedChunk, error) {
	if window <= 0 || len(chunks) == 0 {
		return chunks, nil
	}

	haveIndices := map[uuid.UUID]map[int]bool{}
	fileNames := map[uuid.UUID]string{}
	for _, c := range chunks {
		if c.ChunkIndex == nil || c.ChunkLevel == types.ChunkLevelChild {
			continue
		}
		if haveIndices[c.DocumentID] == nil {
			haveIndices[c.DocumentID] = map[int]bool{}
		}
		haveIndices[c.DocumentID][*c.ChunkIndex] = true
		if fileNames[c.DocumentID] == "" && c.DocumentFileName != "" {
			fileNames[c.DocumentID] = c.DocumentFileName
		}
	}
	if len(haveIndices) == 0 {
		return chunks, nil
	}

	merged := append([]types.RetrievedChunk(nil), chunks...)
	for documentID, indices := range haveIndices {
		missing := make([]int, 0)
		seen := map[int]bool{}
		for idx := range indices {
			for offset := -window; offset <= window; offset++ {
				neighbor := idx + offset
				if neighbor < 0 || indices[neighbor] || seen[neighbor] {
					continue
				}
				seen[neighbor] = true
				missing = append(missing, neighbor)
			}
		}
		if len(missing) == 0 {
			continue
		}
		neighbors, err := s.chunks.GetByDocumentAndIndices(dbc, documentID, missing)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			idx := n.ChunkIndex
			merged = append(merged, types.RetrievedChunk{
				ChunkID:          n.ID,
				DocumentID:       n.DocumentID,
				Content:          n.Content,
				Score:            0,
				ChunkIndex:       &idx,
				DocumentFileName: fileNames[n.DocumentID],
				ChunkLevel:       n.ChunkLevel,
				ParentChunkID:    n.ParentChunkID,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].DocumentID != merged[j].DocumentID {
			return merged[i].DocumentID.String() < merged[j].DocumentID.String()
		}
		ii, jj := 0, 0
		if merged[i].ChunkIndex != nil {
			ii = *merged[i].ChunkIndex
		}
		if merged[j].ChunkIndex != nil {
			jj = *merged[j].ChunkIndex
		}
		return ii < jj
	})
	return merged, nil
}

// SwapParents replaces child hits with their parent chunks, deduplicating on
// parent id while keeping the best child score. Standard chunks pass through.
func (s *RetrievalService) SwapParents(dbc dbctx.Context, chunks []types.RetrievedChunk) ([]types.RetrievedChunk, error) {
	parentIDs := make([]uuid.UUID, 0)
	seen := map[uuid.UUID]bool{}
	for _, c := range chunks {
		if c.ChunkLevel == types.ChunkLevelChild && c.ParentChunkID != nil && !seen[*c.ParentChunkID] {
			seen[*c.ParentChunkID] = true
			parentIDs = append(parentIDs, *c.ParentChunkID)
		}
	}
	if len(parentIDs) == 0 {
		return chunks, nil
	}
	parents, err := s.chunks.GetByIDs(dbc, parentIDs)
	if err != nil {
		return nil, err
	}
	parentByID := map[uuid.UUID]*types.DocumentChunk{}
	for _, p := range parents {
		parentByID[p.ID] = p
	}

	out := make([]types.RetrievedChunk, 0, len(chunks))
	bestByParent := map[uuid.UUID]int{}
	for _, c := range chunks {
		if c.ChunkLevel != types.ChunkLevelChild || c.ParentChunkID == nil {
			out = append(out, c)
			continue
		}
		parent, ok := parentByID[*c.ParentChunkID]
		if !ok {
			out = append(out, c)
			continue
		}
		if pos, dup := bestByParent[parent.ID]; dup {
			if c.Score > out[pos].Score {
				out[pos].Score = c.Score
				out[pos].VectorScore = c.VectorScore
				out[pos].FulltextScore = c.FulltextScore
			}
			continue
		}
		idx := parent.ChunkIndex
		swapped := c
		swapped.ChunkID = parent.ID
		swapped.Content = parent.Content
		swapped.ChunkIndex = &idx
		swapped.ChunkLevel = types.ChunkLevelParent
		swapped.ParentChunkID = nil
		bestByParent[parent.ID] = len(out)
		out = append(out, swapped)
	}
	SortRetrieved(out)
	return out, nil
}

// SortRetrieved orders by score desc, chunk_index asc, chunk_id lexicographic.
func SortRetrieved(chunks []types.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		ii, jj := 0, 0
		if chunks[i].ChunkIndex != nil {
			ii = *chunks[i].ChunkIndex
		}
		if chunks[j].ChunkIndex != nil {
			jj = *chunks[j].ChunkIndex
		}
		if ii != jj {
			return ii < jj
		}
		return chunks[i].ChunkID.String() < chunks[j].ChunkID.String()
	})
}
