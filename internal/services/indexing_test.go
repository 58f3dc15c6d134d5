package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos/testutil"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/storage"
	"github.com/yungbote/raggae-backend/internal/providers"
)

type fakeDocumentRepo struct {
	docs map[uuid.UUID]*types.Document
}

func (f *fakeDocumentRepo) Create(_ dbctx.Context, row *types.Document) (*types.Document, error) {
	f.docs[row.ID] = row
	return row, nil
}

func (f *fakeDocumentRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, &types.DocumentNotFoundError{ID: id.String()}
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	return f.GetByID(dbc, id)
}

func (f *fakeDocumentRepo) ListByProject(_ dbctx.Context, projectID uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	for _, doc := range f.docs {
		if doc.ProjectID == projectID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeDocumentRepo) ListByProjectAndStatus(dbc dbctx.Context, projectID uuid.UUID, statuses []types.DocumentStatus) ([]*types.Document, error) {
	all, _ := f.ListByProject(dbc, projectID)
	var out []*types.Document
	for _, doc := range all {
		for _, st := range statuses {
			if doc.Status == st {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func (f *fakeDocumentRepo) CountByProject(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	all, _ := f.ListByProject(dbc, projectID)
	return int64(len(all)), nil
}

func (f *fakeDocumentRepo) Save(_ dbctx.Context, row *types.Document) error {
	f.docs[row.ID] = row
	return nil
}

func (f *fakeDocumentRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	doc, ok := f.docs[id]
	if !ok {
		return &types.DocumentNotFoundError{ID: id.String()}
	}
	for key, value := range updates {
		switch key {
		case "status":
			doc.Status = value.(types.DocumentStatus)
		case "error_message":
			doc.ErrorMessage = value.(string)
		case "processing_strategy":
			strategy := value.(types.ChunkingStrategy)
			doc.ProcessingStrategy = &strategy
		case "language":
			doc.Language = value.(string)
		case "last_indexed_at":
			at := value.(time.Time)
			doc.LastIndexedAt = &at
		}
	}
	return nil
}

func (f *fakeDocumentRepo) Delete(_ dbctx.Context, id uuid.UUID) error {
	delete(f.docs, id)
	return nil
}

type fakeProjectRepo struct {
	projects map[uuid.UUID]*types.Project
}

func (f *fakeProjectRepo) Create(_ dbctx.Context, row *types.Project) (*types.Project, error) {
	f.projects[row.ID] = row
	return row, nil
}

func (f *fakeProjectRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, &types.ProjectNotFoundError{ID: id.String()}
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProjectRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	return f.GetByID(dbc, id)
}

func (f *fakeProjectRepo) ListByUser(_ dbctx.Context, _ uuid.UUID, _ int) ([]*types.Project, error) {
	return nil, nil
}

func (f *fakeProjectRepo) ListByOrg(_ dbctx.Context, _ uuid.UUID, _ int) ([]*types.Project, error) {
	return nil, nil
}

func (f *fakeProjectRepo) Save(_ dbctx.Context, row *types.Project) error {
	f.projects[row.ID] = row
	return nil
}

func (f *fakeProjectRepo) ListPublishedByOrg(_ dbctx.Context, _ uuid.UUID, _ int) ([]*types.Project, error) {
	return nil, nil
}

func (f *fakeProjectRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	p, ok := f.projects[id]
	if !ok {
		return &types.ProjectNotFoundError{ID: id.String()}
	}
	for key, value := range updates {
		switch key {
		case "reindex_status":
			p.ReindexStatus = value.(types.ReindexStatus)
		case "reindex_progress":
			p.ReindexProgress = value.(int)
		case "reindex_total":
			p.ReindexTotal = value.(int)
		}
	}
	return nil
}

func (f *fakeProjectRepo) Delete(_ dbctx.Context, id uuid.UUID) error {
	delete(f.projects, id)
	return nil
}

type recordingChunkRepo struct {
	stubChunkRepo
	replaced map[uuid.UUID][]*types.DocumentChunk
}

func (r *recordingChunkRepo) ReplaceForDocument(_ dbctx.Context, documentID uuid.UUID, rows []*types.DocumentChunk) error {
	if r.replaced == nil {
		r.replaced = map[uuid.UUID][]*types.DocumentChunk{}
	}
	r.replaced[documentID] = rows
	return nil
}

func newIndexingFixture(t *testing.T, cfg app.Config) (*IndexingService, *fakeDocumentRepo, *fakeProjectRepo, *recordingChunkRepo, *storage.InMemoryStorage) {
	t.Helper()
	log := testutil.Logger(t)
	docs := &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
	projects := &fakeProjectRepo{projects: map[uuid.UUID]*types.Project{}}
	chunks := &recordingChunkRepo{}
	files := storage.NewInMemoryStorage()
	backends := NewBackendResolver(cfg, nil, nil, log)
	svc := NewIndexingService(cfg, docs, chunks, projects, files, backends, log)
	return svc, docs, projects, chunks, files
}

func inmemoryIndexingConfig() app.Config {
	return app.Config{
		DefaultEmbeddingProvider: "inmemory",
		DefaultLLMProvider:       "inmemory",
		EmbeddingDimension:       16,
		ChunkSize:                200,
		ChunkOverlap:             20,
		ParentChunkSize:          400,
		ChildChunkSize:           100,
		ChildChunkOverlap:        10,
		EmbeddingRequestTimeout:  30 * time.Second,
	}
}

func seedDocument(t *testing.T, docs *fakeDocumentRepo, projects *fakeProjectRepo, files *storage.InMemoryStorage, project *types.Project, content string) *types.Document {
	t.Helper()
	projects.projects[project.ID] = project
	doc := &types.Document{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		FileName:    "notes.txt",
		ContentType: "text/plain",
		FileSize:    int64(len(content)),
		StorageKey:  "documents/" + uuid.NewString(),
		Status:      types.DocumentUploaded,
	}
	docs.docs[doc.ID] = doc
	if err := files.Upload(context.Background(), doc.StorageKey, []byte(content), doc.ContentType); err != nil {
		t.Fatalf("upload fixture: %v", err)
	}
	return doc
}

func TestIndexDocumentHappyPath(t *testing.T) {
	cfg := inmemoryIndexingConfig()
	svc, docs, projects, chunks, files := newIndexingFixture(t, cfg)

	project := &types.Project{ID: uuid.New(), UserID: uuid.New(), ChunkingStrategy: types.ChunkingAuto}
	content := strings.Repeat("The retrieval engine ranks chunks by similarity. ", 20)
	doc := seedDocument(t, docs, projects, files, project, content)

	if err := svc.IndexDocument(dbctx.New(context.Background()), doc.ID); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	stored := docs.docs[doc.ID]
	if stored.Status != types.DocumentIndexed {
		t.Fatalf("status = %s, want indexed (error: %q)", stored.Status, stored.ErrorMessage)
	}
	if stored.ProcessingStrategy == nil {
		t.Fatal("processing strategy not persisted")
	}
	if stored.LastIndexedAt == nil {
		t.Fatal("last_indexed_at not set")
	}
	if stored.Language != "en" {
		t.Errorf("language = %q, want en", stored.Language)
	}

	rows := chunks.replaced[doc.ID]
	if len(rows) == 0 {
		t.Fatal("no chunks persisted")
	}
	for i, row := range rows {
		if row.ChunkIndex != i {
			t.Fatalf("chunk_index %d out of sequence (got %d)", i, row.ChunkIndex)
		}
		if row.ChunkLevel != types.ChunkLevelStandard {
			t.Fatalf("chunk level = %s, want standard", row.ChunkLevel)
		}
		if row.Embedding == nil {
			t.Fatal("standard chunk missing embedding")
		}
		if !strings.Contains(string(row.MetadataJSON), `"metadata_version":1`) {
			t.Fatalf("metadata_json missing version: %s", row.MetadataJSON)
		}
		if !strings.Contains(string(row.MetadataJSON), `"source_type":"txt"`) {
			t.Fatalf("metadata_json missing source type: %s", row.MetadataJSON)
		}
	}
}

func TestIndexDocumentParentChild(t *testing.T) {
	cfg := inmemoryIndexingConfig()
	svc, docs, projects, chunks, files := newIndexingFixture(t, cfg)

	project := &types.Project{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		ChunkingStrategy:    types.ChunkingFixedWindow,
		ParentChildChunking: true,
	}
	content := strings.Repeat("Parent and child chunking splits context two ways. ", 30)
	doc := seedDocument(t, docs, projects, files, project, content)

	if err := svc.IndexDocument(dbctx.New(context.Background()), doc.ID); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	rows := chunks.replaced[doc.ID]
	parents, children := 0, 0
	for _, row := range rows {
		switch row.ChunkLevel {
		case types.ChunkLevelParent:
			parents++
			if row.Embedding != nil {
				t.Fatal("parent chunks must not carry embeddings")
			}
			if row.ParentChunkID != nil {
				t.Fatal("parent chunks must not point at a parent")
			}
		case types.ChunkLevelChild:
			children++
			if row.Embedding == nil {
				t.Fatal("child chunks must carry embeddings")
			}
			if row.ParentChunkID == nil {
				t.Fatal("child chunks must point at their parent")
			}
		default:
			t.Fatalf("unexpected chunk level %s", row.ChunkLevel)
		}
	}
	if parents == 0 || children == 0 {
		t.Fatalf("expected both parents and children, got %d/%d", parents, children)
	}
}

type fixedDimensionResolver struct{ dim int }

func (r *fixedDimensionResolver) ResolveEmbedder(dbctx.Context, *types.Project, uuid.UUID) *providers.ContextualEmbedder {
	return providers.NewContextualEmbedder(providers.NewInMemoryEmbedder(r.dim))
}

func TestIndexDocumentDimensionMismatch(t *testing.T) {
	cfg := inmemoryIndexingConfig()
	cfg.EmbeddingDimension = 1536
	log := testutil.Logger(t)
	docs := &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
	projects := &fakeProjectRepo{projects: map[uuid.UUID]*types.Project{}}
	chunks := &recordingChunkRepo{}
	files := storage.NewInMemoryStorage()
	// A backend still producing 16-dim vectors against a 1536-dim column.
	svc := NewIndexingService(cfg, docs, chunks, projects, files, &fixedDimensionResolver{dim: 16}, log)

	project := &types.Project{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		ChunkingStrategy: types.ChunkingFixedWindow,
	}
	content := strings.Repeat("dimension mismatch text ", 40)
	doc := seedDocument(t, docs, projects, files, project, content)

	err := svc.IndexDocument(dbctx.New(context.Background()), doc.ID)
	if err == nil {
		t.Fatal("expected a dimension error")
	}
	var embErr *types.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %T: %v", err, err)
	}
	if !strings.Contains(embErr.Message, "Invalid embedding dimension: expected 1536") {
		t.Fatalf("unexpected message: %q", embErr.Message)
	}

	stored := docs.docs[doc.ID]
	if stored.Status != types.DocumentError {
		t.Fatalf("document must land in error, got %s", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "Invalid embedding dimension") {
		t.Fatalf("error message not persisted: %q", stored.ErrorMessage)
	}
	if len(chunks.replaced[doc.ID]) != 0 {
		t.Fatal("failed run must not persist chunks")
	}
}

func TestIndexDocumentMissingBlob(t *testing.T) {
	cfg := inmemoryIndexingConfig()
	svc, docs, projects, _, _ := newIndexingFixture(t, cfg)

	project := &types.Project{ID: uuid.New(), UserID: uuid.New(), ChunkingStrategy: types.ChunkingFixedWindow}
	projects.projects[project.ID] = project
	doc := &types.Document{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		FileName:    "gone.txt",
		ContentType: "text/plain",
		StorageKey:  "documents/missing",
		Status:      types.DocumentUploaded,
	}
	docs.docs[doc.ID] = doc

	if err := svc.IndexDocument(dbctx.New(context.Background()), doc.ID); err == nil {
		t.Fatal("expected a download error")
	}
	if docs.docs[doc.ID].Status != types.DocumentError {
		t.Fatalf("document left in %s, want error", docs.docs[doc.ID].Status)
	}
}

func TestIndexDocumentRejectedWhileProcessing(t *testing.T) {
	cfg := inmemoryIndexingConfig()
	svc, docs, projects, _, files := newIndexingFixture(t, cfg)

	project := &types.Project{ID: uuid.New(), UserID: uuid.New(), ChunkingStrategy: types.ChunkingFixedWindow}
	doc := seedDocument(t, docs, projects, files, project, "some content here to index")
	docs.docs[doc.ID].Status = types.DocumentProcessing

	err := svc.IndexDocument(dbctx.New(context.Background()), doc.ID)
	var transitionErr *types.InvalidDocumentStatusTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected transition error, got %v", err)
	}
}
