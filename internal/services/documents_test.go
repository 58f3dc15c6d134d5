package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos/testutil"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/storage"
)

func newDocumentFixture(t *testing.T, cfg app.Config) (*DocumentService, *fakeDocumentRepo, *fakeProjectRepo, *storage.InMemoryStorage) {
	t.Helper()
	log := testutil.Logger(t)
	docs := &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
	projects := &fakeProjectRepo{projects: map[uuid.UUID]*types.Project{}}
	chunks := &recordingChunkRepo{}
	files := storage.NewInMemoryStorage()
	svc := NewDocumentService(cfg, docs, projects, chunks, files, nil, log)
	return svc, docs, projects, files
}

func seedOwnedProject(projects *fakeProjectRepo) (*types.Project, uuid.UUID) {
	userID := uuid.New()
	project := &types.Project{ID: uuid.New(), UserID: userID}
	projects.projects[project.ID] = project
	return project, userID
}

func TestUploadStoresBlobAndCreatesRow(t *testing.T) {
	svc, docs, projects, files := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, userID := seedOwnedProject(projects)
	dbc := dbctx.New(context.Background())

	doc, err := svc.Upload(dbc, project.ID, userID, "notes.txt", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Status != types.DocumentUploaded {
		t.Fatalf("status = %q, want uploaded", doc.Status)
	}
	if doc.FileSize != 5 {
		t.Fatalf("file size = %d, want 5", doc.FileSize)
	}
	if _, ok := docs.docs[doc.ID]; !ok {
		t.Fatal("document row not persisted")
	}
	blob, _, err := files.Download(context.Background(), doc.StorageKey)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(blob) != "hello" {
		t.Fatalf("blob = %q, want %q", blob, "hello")
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc, _, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, userID := seedOwnedProject(projects)
	dbc := dbctx.New(context.Background())

	_, err := svc.Upload(dbc, project.ID, userID, "binary.exe", []byte("x"), "application/octet-stream")
	var badType *types.InvalidDocumentTypeError
	if !errors.As(err, &badType) {
		t.Fatalf("err = %v, want InvalidDocumentTypeError", err)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc, _, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 4})
	project, userID := seedOwnedProject(projects)
	dbc := dbctx.New(context.Background())

	_, err := svc.Upload(dbc, project.ID, userID, "notes.txt", []byte("too big"), "text/plain")
	var tooLarge *types.DocumentTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want DocumentTooLargeError", err)
	}
}

func TestUploadEnforcesProjectQuota(t *testing.T) {
	svc, docs, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20, MaxDocumentsPerProject: 1})
	project, userID := seedOwnedProject(projects)
	existing := &types.Document{ID: uuid.New(), ProjectID: project.ID, FileName: "a.txt"}
	docs.docs[existing.ID] = existing
	dbc := dbctx.New(context.Background())

	_, err := svc.Upload(dbc, project.ID, userID, "b.txt", []byte("x"), "text/plain")
	var quota *types.ProjectDocumentLimitReachedError
	if !errors.As(err, &quota) {
		t.Fatalf("err = %v, want ProjectDocumentLimitReachedError", err)
	}
}

func TestUploadRejectsForeignProject(t *testing.T) {
	svc, _, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, _ := seedOwnedProject(projects)
	dbc := dbctx.New(context.Background())

	_, err := svc.Upload(dbc, project.ID, uuid.New(), "notes.txt", []byte("x"), "text/plain")
	var notFound *types.ProjectNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ProjectNotFoundError", err)
	}
}

func TestUploadManyPartialResults(t *testing.T) {
	svc, docs, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 10})
	project, userID := seedOwnedProject(projects)
	strategy := types.ChunkingFixedWindow
	indexed := &types.Document{
		ID:                 uuid.New(),
		ProjectID:          project.ID,
		FileName:           "report.txt",
		ProcessingStrategy: &strategy,
	}
	docs.docs[indexed.ID] = indexed
	dbc := dbctx.New(context.Background())

	result, err := svc.UploadMany(dbc, project.ID, userID, []UploadItem{
		{FileName: "fresh.txt", Content: []byte("ok"), ContentType: "text/plain"},
		{FileName: "fresh.txt", Content: []byte("dup"), ContentType: "text/plain"},
		{FileName: "report.txt", Content: []byte("ok"), ContentType: "text/plain"},
		{FileName: "binary.exe", Content: []byte("x"), ContentType: "application/octet-stream"},
		{FileName: "huge.txt", Content: []byte("far too many bytes"), ContentType: "text/plain"},
	})
	if err != nil {
		t.Fatalf("UploadMany: %v", err)
	}
	if result.Total != 5 || result.Succeeded != 1 || result.Failed != 4 {
		t.Fatalf("result = %d/%d/%d, want 5/1/4", result.Total, result.Succeeded, result.Failed)
	}
	codes := map[string]string{}
	for _, e := range result.Errors {
		codes[e.Filename] = e.Code
	}
	if codes["fresh.txt"] != UploadErrDuplicateInRequest {
		t.Fatalf("fresh.txt code = %q", codes["fresh.txt"])
	}
	if codes["report.txt"] != UploadErrAlreadyIndexed {
		t.Fatalf("report.txt code = %q", codes["report.txt"])
	}
	if codes["binary.exe"] != UploadErrInvalidFileType {
		t.Fatalf("binary.exe code = %q", codes["binary.exe"])
	}
	if codes["huge.txt"] != UploadErrFileTooLarge {
		t.Fatalf("huge.txt code = %q", codes["huge.txt"])
	}
}

func TestUploadManyResolvesNameCollision(t *testing.T) {
	svc, docs, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, userID := seedOwnedProject(projects)
	// Uploaded but never indexed, so a re-upload is allowed under a new name.
	existing := &types.Document{ID: uuid.New(), ProjectID: project.ID, FileName: "Notes.txt"}
	docs.docs[existing.ID] = existing
	dbc := dbctx.New(context.Background())

	result, err := svc.UploadMany(dbc, project.ID, userID, []UploadItem{
		{FileName: "notes.txt", Content: []byte("v2"), ContentType: "text/plain"},
	})
	if err != nil {
		t.Fatalf("UploadMany: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("succeeded = %d, errors = %+v", result.Succeeded, result.Errors)
	}
	if got := result.Created[0].StoredFilename; got != "notes-copie-1.txt" {
		t.Fatalf("stored filename = %q, want notes-copie-1.txt", got)
	}
}

func TestDeleteRemovesBlobAndChunks(t *testing.T) {
	svc, docs, projects, files := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, userID := seedOwnedProject(projects)
	dbc := dbctx.New(context.Background())

	doc, err := svc.Upload(dbc, project.ID, userID, "notes.txt", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := svc.Delete(dbc, doc.ID, userID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := docs.docs[doc.ID]; ok {
		t.Fatal("document row still present")
	}
	if _, _, err := files.Download(context.Background(), doc.StorageKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("blob err = %v, want ErrObjectNotFound", err)
	}
}

func TestReindexRejectsProcessingDocument(t *testing.T) {
	svc, docs, projects, _ := newDocumentFixture(t, app.Config{MaxUploadSize: 1 << 20})
	project, userID := seedOwnedProject(projects)
	doc := &types.Document{ID: uuid.New(), ProjectID: project.ID, FileName: "a.txt", Status: types.DocumentProcessing}
	docs.docs[doc.ID] = doc
	dbc := dbctx.New(context.Background())

	err := svc.Reindex(dbc, doc.ID, userID)
	var invalid *types.InvalidDocumentStatusTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidDocumentStatusTransitionError", err)
	}
}

func TestResolveUniqueFilename(t *testing.T) {
	existing := map[string]bool{"report.txt": true, "report-copie-1.txt": true}
	if got := resolveUniqueFilename("report.txt", existing); got != "report-copie-2.txt" {
		t.Fatalf("got %q, want report-copie-2.txt", got)
	}
	if got := resolveUniqueFilename("fresh.txt", existing); got != "fresh.txt" {
		t.Fatalf("got %q, want fresh.txt", got)
	}
	if got := resolveUniqueFilename("README", map[string]bool{"readme": true}); got != "README-copie-1" {
		t.Fatalf("got %q, want README-copie-1", got)
	}
}
