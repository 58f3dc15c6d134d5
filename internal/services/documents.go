package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/redisq"
	"github.com/yungbote/raggae-backend/internal/platform/storage"
)

// allowedDocumentExtensions are the only upload types accepted; everything
// else is rejected before touching blob storage.
var allowedDocumentExtensions = map[string]bool{
	"txt":  true,
	"md":   true,
	"pdf":  true,
	"docx": true,
}

// Batch upload error codes, one per rejection reason.
const (
	UploadErrDuplicateInRequest = "DUPLICATE_IN_REQUEST"
	UploadErrAlreadyIndexed     = "ALREADY_INDEXED"
	UploadErrInvalidFileType    = "INVALID_FILE_TYPE"
	UploadErrFileTooLarge       = "FILE_TOO_LARGE"
	UploadErrQuotaReached       = "QUOTA_REACHED"
)

// UploadItem is one file in a batch upload.
type UploadItem struct {
	FileName    string
	Content     []byte
	ContentType string
}

// UploadCreated reports one stored document; StoredFilename differs from the
// original when a name collision forced a rename.
type UploadCreated struct {
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename"`
	DocumentID       uuid.UUID `json:"document_id"`
}

// UploadError reports one rejected file with a machine-readable code.
type UploadError struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// UploadResult is a batch outcome with per-file partial results.
type UploadResult struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Created   []UploadCreated `json:"created"`
	Errors    []UploadError   `json:"errors"`
}

// DocumentService owns the document lifecycle outside the pipeline: upload
// with type/size/quota enforcement, listing, deletion, and reindex requests.
// Indexing itself runs in the worker; uploads only enqueue.
type DocumentService struct {
	cfg       app.Config
	documents repos.DocumentRepo
	projects  repos.ProjectRepo
	chunks    repos.ChunkRepo
	files     storage.FileStorage
	queue     *redisq.Queue
	log       *logger.Logger
}

func NewDocumentService(cfg app.Config, documents repos.DocumentRepo, projects repos.ProjectRepo, chunks repos.ChunkRepo, files storage.FileStorage, queue *redisq.Queue, log *logger.Logger) *DocumentService {
	return &DocumentService{
		cfg:       cfg,
		documents: documents,
		projects:  projects,
		chunks:    chunks,
		files:     files,
		queue:     queue,
		log:       log.With("service", "DocumentService"),
	}
}

// Upload stores one file and creates its document row in the uploaded state,
// then enqueues ingestion. Ownership, extension, size and project quota are
// all checked first.
func (s *DocumentService) Upload(dbc dbctx.Context, projectID, userID uuid.UUID, fileName string, content []byte, contentType string) (*types.Document, error) {
	if _, err := s.ownedProject(dbc, projectID, userID); err != nil {
		return nil, err
	}
	count, err := s.documents.CountByProject(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxDocumentsPerProject > 0 && count >= int64(s.cfg.MaxDocumentsPerProject) {
		return nil, &types.ProjectDocumentLimitReachedError{Max: s.cfg.MaxDocumentsPerProject}
	}
	return s.store(dbc, projectID, fileName, content, contentType)
}

// UploadMany stores a batch with per-file outcomes: one bad file never fails
// the batch. Filenames already indexed for the project are rejected; plain
// name collisions get a "-copie-N" suffix.
func (s *DocumentService) UploadMany(dbc dbctx.Context, projectID, userID uuid.UUID, files []UploadItem) (*UploadResult, error) {
	if _, err := s.ownedProject(dbc, projectID, userID); err != nil {
		return nil, err
	}
	existing, err := s.documents.ListByProject(dbc, projectID)
	if err != nil {
		return nil, err
	}
	indexedNames := map[string]bool{}
	existingNames := map[string]bool{}
	for _, doc := range existing {
		name := strings.ToLower(doc.FileName)
		existingNames[name] = true
		if doc.ProcessingStrategy != nil {
			indexedNames[name] = true
		}
	}

	result := &UploadResult{Total: len(files)}
	requestNames := map[string]bool{}
	remaining := -1
	if s.cfg.MaxDocumentsPerProject > 0 {
		remaining = s.cfg.MaxDocumentsPerProject - len(existing)
	}

	for _, item := range files {
		requestName := strings.ToLower(item.FileName)
		if requestNames[requestName] {
			result.Errors = append(result.Errors, UploadError{
				Filename: item.FileName,
				Code:     UploadErrDuplicateInRequest,
				Message:  "Duplicate filename in request.",
			})
			continue
		}
		requestNames[requestName] = true
		if indexedNames[requestName] {
			result.Errors = append(result.Errors, UploadError{
				Filename: item.FileName,
				Code:     UploadErrAlreadyIndexed,
				Message:  "Document already exists and is already indexed for this project.",
			})
			continue
		}
		if remaining == 0 {
			result.Errors = append(result.Errors, UploadError{
				Filename: item.FileName,
				Code:     UploadErrQuotaReached,
				Message:  fmt.Sprintf("Project document limit of %d reached.", s.cfg.MaxDocumentsPerProject),
			})
			continue
		}

		storedName := resolveUniqueFilename(item.FileName, existingNames)
		doc, err := s.store(dbc, projectID, storedName, item.Content, item.ContentType)
		if err != nil {
			result.Errors = append(result.Errors, uploadErrorFor(item.FileName, err))
			continue
		}
		existingNames[strings.ToLower(storedName)] = true
		if remaining > 0 {
			remaining--
		}
		result.Created = append(result.Created, UploadCreated{
			OriginalFilename: item.FileName,
			StoredFilename:   storedName,
			DocumentID:       doc.ID,
		})
	}

	result.Succeeded = len(result.Created)
	result.Failed = len(result.Errors)
	return result, nil
}

// List returns the project's documents after an ownership check.
func (s *DocumentService) List(dbc dbctx.Context, projectID, userID uuid.UUID) ([]*types.Document, error) {
	if _, err := s.ownedProject(dbc, projectID, userID); err != nil {
		return nil, err
	}
	return s.documents.ListByProject(dbc, projectID)
}

// GetFile downloads the stored blob for a document.
func (s *DocumentService) GetFile(dbc dbctx.Context, documentID, userID uuid.UUID) ([]byte, string, error) {
	doc, err := s.ownedDocument(dbc, documentID, userID)
	if err != nil {
		return nil, "", err
	}
	return s.files.Download(dbc.Ctx, doc.StorageKey)
}

// Delete removes the blob, the chunks and the row. A missing blob is not an
// error; the row is the source of truth.
func (s *DocumentService) Delete(dbc dbctx.Context, documentID, userID uuid.UUID) error {
	doc, err := s.ownedDocument(dbc, documentID, userID)
	if err != nil {
		return err
	}
	if err := s.files.Delete(dbc.Ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.log.Warn("failed to delete document blob", "document_id", documentID, "error", err)
	}
	if err := s.chunks.DeleteByDocument(dbc, documentID); err != nil {
		return err
	}
	return s.documents.Delete(dbc, documentID)
}

// Reindex enqueues a fresh ingestion run for one document. Documents already
// mid-pipeline are rejected.
func (s *DocumentService) Reindex(dbc dbctx.Context, documentID, userID uuid.UUID) error {
	doc, err := s.ownedDocument(dbc, documentID, userID)
	if err != nil {
		return err
	}
	if doc.Status == types.DocumentProcessing {
		return &types.InvalidDocumentStatusTransitionError{From: doc.Status, To: types.DocumentProcessing}
	}
	s.enqueueIngest(dbc, doc)
	return nil
}

func (s *DocumentService) store(dbc dbctx.Context, projectID uuid.UUID, fileName string, content []byte, contentType string) (*types.Document, error) {
	extension := ""
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		extension = strings.ToLower(fileName[i+1:])
	}
	if !allowedDocumentExtensions[extension] {
		return nil, &types.InvalidDocumentTypeError{Extension: extension}
	}
	if s.cfg.MaxUploadSize > 0 && len(content) > s.cfg.MaxUploadSize {
		return nil, &types.DocumentTooLargeError{Size: len(content), Max: s.cfg.MaxUploadSize}
	}

	documentID := uuid.New()
	storageKey := fmt.Sprintf("projects/%s/documents/%s-%s", projectID, documentID, fileName)
	if err := s.files.Upload(dbc.Ctx, storageKey, content, contentType); err != nil {
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	doc := &types.Document{
		ID:          documentID,
		ProjectID:   projectID,
		FileName:    fileName,
		ContentType: contentType,
		FileSize:    int64(len(content)),
		StorageKey:  storageKey,
		Status:      types.DocumentUploaded,
	}
	created, err := s.documents.Create(dbc, doc)
	if err != nil {
		if delErr := s.files.Delete(dbc.Ctx, storageKey); delErr != nil {
			s.log.Warn("failed to clean up blob after create failure", "storage_key", storageKey, "error", delErr)
		}
		return nil, err
	}
	s.enqueueIngest(dbc, created)
	return created, nil
}

func (s *DocumentService) enqueueIngest(dbc dbctx.Context, doc *types.Document) {
	if s.queue == nil {
		return
	}
	job := redisq.IngestJob{DocumentID: doc.ID, ProjectID: doc.ProjectID}
	if err := s.queue.EnqueueIngest(dbc.Ctx, job); err != nil {
		s.log.Error("failed to enqueue ingest job", "document_id", doc.ID, "error", err)
	}
}

func (s *DocumentService) ownedProject(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Project, error) {
	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, &types.ProjectNotFoundError{ID: projectID.String()}
	}
	return project, nil
}

func (s *DocumentService) ownedDocument(dbc dbctx.Context, documentID, userID uuid.UUID) (*types.Document, error) {
	doc, err := s.documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedProject(dbc, doc.ProjectID, userID); err != nil {
		return nil, &types.DocumentNotFoundError{ID: documentID.String()}
	}
	return doc, nil
}

// resolveUniqueFilename appends "-copie-N" before the extension until the
// name no longer collides, case-insensitively.
func resolveUniqueFilename(fileName string, existingNames map[string]bool) string {
	if !existingNames[strings.ToLower(fileName)] {
		return fileName
	}
	name, extension := fileName, ""
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		name, extension = fileName[:i], fileName[i+1:]
	}
	for index := 1; ; index++ {
		candidate := fmt.Sprintf("%s-copie-%d", name, index)
		if extension != "" {
			candidate = fmt.Sprintf("%s-copie-%d.%s", name, index, extension)
		}
		if !existingNames[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

func uploadErrorFor(fileName string, err error) UploadError {
	var tooLarge *types.DocumentTooLargeError
	var badType *types.InvalidDocumentTypeError
	switch {
	case errors.As(err, &badType):
		return UploadError{Filename: fileName, Code: UploadErrInvalidFileType, Message: badType.Error()}
	case errors.As(err, &tooLarge):
		return UploadError{Filename: fileName, Code: UploadErrFileTooLarge, Message: "Document exceeds maximum allowed size"}
	default:
		return UploadError{Filename: fileName, Code: "UPLOAD_FAILED", Message: err.Error()}
	}
}
