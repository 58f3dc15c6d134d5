package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/ingest"
	"github.com/yungbote/raggae-backend/internal/observability"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/storage"
	"github.com/yungbote/raggae-backend/internal/providers"
)

const chunkMetadataVersion = 1

// chunkMetadata is what lands in metadata_json on every chunk row.
type chunkMetadata struct {
	MetadataVersion    int    `json:"metadata_version"`
	ProcessingStrategy string `json:"processing_strategy"`
	SourceType         string `json:"source_type"`
	ChunkerBackend     string `json:"chunker_backend"`
}

// EmbedderResolver yields the embedding backend for a project. Satisfied by
// BackendResolver.
type EmbedderResolver interface {
	ResolveEmbedder(dbc dbctx.Context, project *types.Project, userID uuid.UUID) *providers.ContextualEmbedder
}

// IndexingService runs a document through the full pipeline: download,
// extract, sanitize, pick a chunking strategy, chunk, embed, persist. The
// document always lands in indexed or error; it is never left in processing.
type IndexingService struct {
	cfg       app.Config
	documents repos.DocumentRepo
	chunks    repos.ChunkRepo
	projects  repos.ProjectRepo
	files     storage.FileStorage
	backends  EmbedderResolver
	log       *logger.Logger
}

func NewIndexingService(cfg app.Config, documents repos.DocumentRepo, chunks repos.ChunkRepo, projects repos.ProjectRepo, files storage.FileStorage, backends EmbedderResolver, log *logger.Logger) *IndexingService {
	return &IndexingService{
		cfg:       cfg,
		documents: documents,
		chunks:    chunks,
		projects:  projects,
		files:     files,
		backends:  backends,
		log:       log.With("service", "IndexingService"),
	}
}

// IndexDocument processes one document end to end. Any failure after the
// transition to processing moves the document to error with the failure
// message; the error is also returned so queue consumers can count it.
func (s *IndexingService) IndexDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	doc, err := s.documents.GetByID(dbc, documentID)
	if err != nil {
		return err
	}
	project, err := s.projects.GetByID(dbc, doc.ProjectID)
	if err != nil {
		return err
	}

	processing, err := doc.TransitionTo(types.DocumentProcessing, "")
	if err != nil {
		return err
	}
	*doc = processing
	if err := s.documents.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":        types.DocumentProcessing,
		"error_message": "",
	}); err != nil {
		return err
	}
	s.log.Info("indexing document", "document_id", doc.ID, "file_name", doc.FileName)

	ctx, span := observability.StartSpan(dbc.Ctx, "ingest.document",
		attribute.String("document.id", doc.ID.String()),
		attribute.String("document.file_name", doc.FileName),
	)
	dbc.Ctx = ctx
	if err := s.index(dbc, doc, project); err != nil {
		observability.EndSpan(span, err)
		s.fail(dbc, doc, err)
		return err
	}
	observability.EndSpan(span, nil)
	return nil
}

func (s *IndexingService) index(dbc dbctx.Context, doc *types.Document, project *types.Project) error {
	data, contentType, err := s.files.Download(dbc.Ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = doc.ContentType
	}

	_, span := observability.StartSpan(dbc.Ctx, "ingest.extract",
		attribute.String("ingest.source_type", sourceType(doc.FileName)),
	)
	text, err := ingest.ExtractText(doc.FileName, contentType, data)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}
	_, span = observability.StartSpan(dbc.Ctx, "ingest.sanitize")
	text = ingest.Sanitize(text)
	observability.EndSpan(span, nil)
	if strings.TrimSpace(text) == "" {
		return types.NewDocumentProcessingError("No text content could be extracted from the document")
	}

	strategy := project.ChunkingStrategy
	if strategy == types.ChunkingAuto {
		_, span = observability.StartSpan(dbc.Ctx, "ingest.analyze")
		strategy = ingest.SelectStrategy(ingest.Analyze(text))
		observability.EndSpan(span, nil)
	}
	if err := s.documents.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"processing_strategy": strategy,
	}); err != nil {
		return err
	}
	doc.ProcessingStrategy = &strategy

	embedder := s.backends.ResolveEmbedder(dbc, project, project.UserID)

	chunker := ingest.NewChunker(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	chunker.ContextWindowSize = s.cfg.RetrievalContextWindowSize
	if strategy == types.ChunkingSemantic {
		chunker.Embedder = embedder
	}
	chunkCtx, span := observability.StartSpan(dbc.Ctx, "ingest.chunk",
		attribute.String("ingest.strategy", string(strategy)),
	)
	chunkTexts, err := chunker.Chunk(chunkCtx, text, strategy)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}
	if len(chunkTexts) == 0 {
		return types.NewDocumentProcessingError("Chunking produced no content")
	}

	metadata, err := json.Marshal(chunkMetadata{
		MetadataVersion:    chunkMetadataVersion,
		ProcessingStrategy: string(strategy),
		SourceType:         sourceType(doc.FileName),
		ChunkerBackend:     "native",
	})
	if err != nil {
		return err
	}

	var rows []*types.DocumentChunk
	if project.ParentChildChunking {
		rows, err = s.buildParentChildRows(dbc.Ctx, doc, embedder, chunkTexts, metadata)
	} else {
		rows, err = s.buildStandardRows(dbc.Ctx, doc, embedder, chunkTexts, metadata)
	}
	if err != nil {
		return err
	}

	_, span = observability.StartSpan(dbc.Ctx, "ingest.persist",
		attribute.Int("ingest.chunks", len(rows)),
	)
	err = s.chunks.ReplaceForDocument(dbc, doc.ID, rows)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	keywords, err := json.Marshal(ExtractKeywords(text, DefaultMaxKeywords))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.documents.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":          types.DocumentIndexed,
		"error_message":   "",
		"language":        DetectLanguage(text),
		"keywords":        datatypes.JSON(keywords),
		"last_indexed_at": now,
	}); err != nil {
		return err
	}
	doc.Status = types.DocumentIndexed
	s.log.Info("document indexed", "document_id", doc.ID, "chunks", len(rows), "strategy", strategy)
	return nil
}

func (s *IndexingService) buildStandardRows(ctx context.Context, doc *types.Document, embedder providers.Embedder, chunkTexts []string, metadata []byte) ([]*types.DocumentChunk, error) {
	vectors, err := s.embed(ctx, embedder, chunkTexts)
	if err != nil {
		return nil, err
	}
	rows := make([]*types.DocumentChunk, 0, len(chunkTexts))
	for i, content := range chunkTexts {
		vec := pgvector.NewVector(vectors[i])
		rows = append(rows, &types.DocumentChunk{
			ID:           uuid.New(),
			DocumentID:   doc.ID,
			ChunkIndex:   i,
			Content:      content,
			Embedding:    &vec,
			ChunkLevel:   types.ChunkLevelStandard,
			MetadataJSON: datatypes.JSON(metadata),
		})
	}
	return rows, nil
}

// buildParentChildRows stores each parent without an embedding and its
// children embedded with a parent link. chunk_index stays sequential over
// the whole document.
func (s *IndexingService) buildParentChildRows(ctx context.Context, doc *types.Document, embedder providers.Embedder, chunkTexts []string, metadata []byte) ([]*types.DocumentChunk, error) {
	groups := ingest.SplitParentChild(chunkTexts, s.cfg.ParentChunkSize, s.cfg.ChildChunkSize, s.cfg.ChildChunkOverlap)
	if len(groups) == 0 {
		return nil, types.NewDocumentProcessingError("Chunking produced no content")
	}

	var childTexts []string
	for _, g := range groups {
		childTexts = append(childTexts, g.Children...)
	}
	vectors, err := s.embed(ctx, embedder, childTexts)
	if err != nil {
		return nil, err
	}

	var rows []*types.DocumentChunk
	index := 0
	vectorIdx := 0
	for _, g := range groups {
		parentID := uuid.New()
		rows = append(rows, &types.DocumentChunk{
			ID:           parentID,
			DocumentID:   doc.ID,
			ChunkIndex:   index,
			Content:      g.Parent,
			ChunkLevel:   types.ChunkLevelParent,
			MetadataJSON: datatypes.JSON(metadata),
		})
		index++
		for _, child := range g.Children {
			vec := pgvector.NewVector(vectors[vectorIdx])
			vectorIdx++
			pid := parentID
			rows = append(rows, &types.DocumentChunk{
				ID:            uuid.New(),
				DocumentID:    doc.ID,
				ChunkIndex:    index,
				Content:       child,
				Embedding:     &vec,
				ChunkLevel:    types.ChunkLevelChild,
				ParentChunkID: &pid,
				MetadataJSON:  datatypes.JSON(metadata),
			})
			index++
		}
	}
	return rows, nil
}

// embed runs the embedder under the configured timeout and enforces the
// storage column dimension on every vector.
func (s *IndexingService) embed(ctx context.Context, embedder providers.Embedder, texts []string) ([][]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingRequestTimeout)
	defer cancel()
	embedCtx, span := observability.StartSpan(embedCtx, "ingest.embed",
		attribute.Int("embedding.batch_size", len(texts)),
	)
	vectors, err := embedder.EmbedTexts(embedCtx, texts)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, types.NewEmbeddingError("Embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != s.cfg.EmbeddingDimension {
			return nil, types.NewEmbeddingError("Invalid embedding dimension: expected %d, got %d", s.cfg.EmbeddingDimension, len(vec))
		}
	}
	return vectors, nil
}

// fail moves the document to error with a truncated message. Failures here
// are logged and swallowed so the original error keeps propagating.
func (s *IndexingService) fail(dbc dbctx.Context, doc *types.Document, cause error) {
	failed, terr := doc.TransitionTo(types.DocumentError, cause.Error())
	if terr != nil {
		s.log.Error("document error transition rejected", "document_id", doc.ID, "error", terr)
		return
	}
	*doc = failed
	if uerr := s.documents.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":        types.DocumentError,
		"error_message": failed.ErrorMessage,
	}); uerr != nil {
		s.log.Error("failed to persist document error state", "document_id", doc.ID, "error", uerr)
	}
	s.log.Warn("document indexing failed", "document_id", doc.ID, "error", cause)
}

func sourceType(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		return "unknown"
	}
	return ext
}
