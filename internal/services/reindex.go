package services

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/redisq"
)

// reindexParallelism bounds concurrent per-document pipelines during a
// project reindex.
const reindexParallelism = 2

// ReindexResult summarizes one full project reindex.
type ReindexResult struct {
	ProjectID uuid.UUID `json:"project_id"`
	Total     int       `json:"total"`
	Indexed   int       `json:"indexed"`
	Failed    int       `json:"failed"`
}

// DocumentIndexer runs the pipeline for one document. Satisfied by
// IndexingService.
type DocumentIndexer interface {
	IndexDocument(dbc dbctx.Context, documentID uuid.UUID) error
}

// ReindexService re-runs the indexing pipeline over every document in a
// project, tracking progress on the project row and publishing it over the
// queue's progress channel.
type ReindexService struct {
	db        *gorm.DB
	projects  repos.ProjectRepo
	documents repos.DocumentRepo
	indexing  DocumentIndexer
	queue     *redisq.Queue
	log       *logger.Logger
}

func NewReindexService(db *gorm.DB, projects repos.ProjectRepo, documents repos.DocumentRepo, indexing DocumentIndexer, queue *redisq.Queue, log *logger.Logger) *ReindexService {
	return &ReindexService{
		db:        db,
		projects:  projects,
		documents: documents,
		indexing:  indexing,
		queue:     queue,
		log:       log.With("service", "ReindexService"),
	}
}

// ReindexProject reindexes all documents of a project. A second call while
// one is running returns ProjectReindexInProgressError. Per-document failures
// do not abort the run; they mark the final status failed.
func (s *ReindexService) ReindexProject(dbc dbctx.Context, projectID uuid.UUID) (*ReindexResult, error) {
	var docs []*types.Document

	// Claim the reindex under a row lock so concurrent calls cannot both
	// enter running.
	err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.WithTx(dbc.Ctx, tx)
		project, err := s.projects.LockByID(txc, projectID)
		if err != nil {
			return err
		}
		docs, err = s.documents.ListByProject(txc, projectID)
		if err != nil {
			return err
		}
		started, err := project.StartReindex(len(docs))
		if err != nil {
			return err
		}
		return s.projects.UpdateFields(txc, projectID, map[string]interface{}{
			"reindex_status":   started.ReindexStatus,
			"reindex_progress": started.ReindexProgress,
			"reindex_total":    started.ReindexTotal,
		})
	})
	if err != nil {
		return nil, err
	}

	total := len(docs)
	s.log.Info("reindex started", "project_id", projectID, "total", total)

	var mu sync.Mutex
	progress, failed := 0, 0

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.SetLimit(reindexParallelism)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			err := s.indexing.IndexDocument(dbctx.New(gctx), doc.ID)

			mu.Lock()
			progress++
			if err != nil {
				failed++
			}
			current, failedSoFar := progress, failed
			mu.Unlock()

			if err != nil {
				s.log.Warn("reindex document failed", "project_id", projectID, "document_id", doc.ID, "error", err)
			}
			s.advance(dbc, projectID, current, failedSoFar, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	final := types.ReindexIdle
	if failed > 0 {
		final = types.ReindexFailed
	}
	if err := s.projects.UpdateFields(dbc, projectID, map[string]interface{}{
		"reindex_status":   final,
		"reindex_progress": progress,
	}); err != nil {
		return nil, err
	}

	result := &ReindexResult{ProjectID: projectID, Total: total, Indexed: total - failed, Failed: failed}
	s.log.Info("reindex finished", "project_id", projectID, "total", total, "indexed", result.Indexed, "failed", failed)
	return result, nil
}

// advance persists monotonic progress and publishes it. Both are best-effort;
// a stale counter never aborts the run.
func (s *ReindexService) advance(dbc dbctx.Context, projectID uuid.UUID, progress, failed, total int) {
	if err := s.db.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ? AND reindex_progress < ?", projectID, progress).
		Update("reindex_progress", progress).Error; err != nil {
		s.log.Warn("reindex progress update failed", "project_id", projectID, "error", err)
	}
	if s.queue != nil {
		s.queue.PublishReindexProgress(dbc.Ctx, redisq.ReindexProgress{
			ProjectID: projectID,
			Progress:  progress,
			Total:     total,
			Failed:    failed,
		})
	}
}
