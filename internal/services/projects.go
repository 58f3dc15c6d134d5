package services

import (
	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/redisq"
	"github.com/yungbote/raggae-backend/internal/providers"
)

// ProjectSettingsUpdate is a patch: nil fields keep the current value.
type ProjectSettingsUpdate struct {
	Name                *string
	Description         *string
	SystemPrompt        *string
	IsPublished         *bool
	ChunkingStrategy    *string
	ParentChildChunking *bool

	EmbeddingBackend *string
	EmbeddingModel   *string
	LLMBackend       *string
	LLMModel         *string

	RetrievalStrategy *string
	RetrievalTopK     *int
	RetrievalMinScore *float64

	ChatHistoryWindowSize *int
	ChatHistoryMaxChars   *int

	RerankingEnabled            *bool
	RerankerBackend             *string
	RerankerModel               *string
	RerankerCandidateMultiplier *int

	UserCredentialID *uuid.UUID
	OrgCredentialID  *uuid.UUID
}

// ProjectService owns project lifecycle and tuning. Model names are checked
// against the closed catalog on every write, so a project can never point at
// a model the resolvers would refuse.
type ProjectService struct {
	cfg      app.Config
	projects repos.ProjectRepo
	catalog  *providers.Catalog
	queue    *redisq.Queue
	log      *logger.Logger
}

func NewProjectService(cfg app.Config, projects repos.ProjectRepo, catalog *providers.Catalog, queue *redisq.Queue, log *logger.Logger) *ProjectService {
	if catalog == nil {
		catalog = providers.DefaultCatalog()
	}
	return &ProjectService{
		cfg:      cfg,
		projects: projects,
		catalog:  catalog,
		queue:    queue,
		log:      log.With("service", "ProjectService"),
	}
}

// Create persists a new project with the domain defaults and validates any
// backend/model overrides the caller set.
func (s *ProjectService) Create(dbc dbctx.Context, userID uuid.UUID, name, description string) (*types.Project, error) {
	project := &types.Project{
		ID:                          uuid.New(),
		UserID:                      userID,
		Name:                        name,
		Description:                 description,
		ChunkingStrategy:            types.ChunkingAuto,
		RetrievalStrategy:           types.RetrievalHybrid,
		RetrievalTopK:               types.DefaultRetrievalTopK,
		RetrievalMinScore:           types.DefaultRetrievalMinScore,
		ChatHistoryWindowSize:       types.DefaultChatHistoryWindowSize,
		ChatHistoryMaxChars:         types.DefaultChatHistoryMaxChars,
		RerankerCandidateMultiplier: types.DefaultRerankerCandidateMultiplier,
	}
	if err := project.ValidateTuning(); err != nil {
		return nil, err
	}
	return s.projects.Create(dbc, project)
}

// Get returns a project the user owns.
func (s *ProjectService) Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Project, error) {
	return s.owned(dbc, projectID, userID)
}

// List returns the user's projects, most recently updated first.
func (s *ProjectService) List(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Project, error) {
	return s.projects.ListByUser(dbc, userID, limit)
}

// UpdateSettings applies a patch under the tuning bounds and the model
// catalog. The row is re-read under lock so concurrent patches serialize.
func (s *ProjectService) UpdateSettings(dbc dbctx.Context, projectID, userID uuid.UUID, patch ProjectSettingsUpdate) (*types.Project, error) {
	project, err := s.owned(dbc, projectID, userID)
	if err != nil {
		return nil, err
	}

	next := *project
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.SystemPrompt != nil {
		if next, err = next.WithSystemPrompt(*patch.SystemPrompt); err != nil {
			return nil, err
		}
	}
	if patch.IsPublished != nil && *patch.IsPublished != next.IsPublished {
		if *patch.IsPublished {
			next, err = next.Publish()
		} else {
			next, err = next.Unpublish()
		}
		if err != nil {
			return nil, err
		}
	}
	if patch.ChunkingStrategy != nil {
		strategy, err := types.ParseChunkingStrategy(*patch.ChunkingStrategy)
		if err != nil {
			return nil, err
		}
		next.ChunkingStrategy = strategy
	}
	if patch.ParentChildChunking != nil {
		next.ParentChildChunking = *patch.ParentChildChunking
	}
	if patch.EmbeddingBackend != nil {
		if err := validBackend(*patch.EmbeddingBackend); err != nil {
			return nil, err
		}
		next.EmbeddingBackend = *patch.EmbeddingBackend
	}
	if patch.EmbeddingModel != nil {
		next.EmbeddingModel = *patch.EmbeddingModel
	}
	if patch.LLMBackend != nil {
		if err := validBackend(*patch.LLMBackend); err != nil {
			return nil, err
		}
		next.LLMBackend = *patch.LLMBackend
	}
	if patch.LLMModel != nil {
		next.LLMModel = *patch.LLMModel
	}
	if patch.RetrievalStrategy != nil {
		next.RetrievalStrategy = types.RetrievalStrategy(*patch.RetrievalStrategy)
	}
	if patch.RetrievalTopK != nil {
		next.RetrievalTopK = *patch.RetrievalTopK
	}
	if patch.RetrievalMinScore != nil {
		next.RetrievalMinScore = *patch.RetrievalMinScore
	}
	if patch.ChatHistoryWindowSize != nil {
		next.ChatHistoryWindowSize = *patch.ChatHistoryWindowSize
	}
	if patch.ChatHistoryMaxChars != nil {
		next.ChatHistoryMaxChars = *patch.ChatHistoryMaxChars
	}
	if patch.RerankingEnabled != nil {
		next.RerankingEnabled = *patch.RerankingEnabled
	}
	if patch.RerankerBackend != nil {
		next.RerankerBackend = *patch.RerankerBackend
	}
	if patch.RerankerModel != nil {
		next.RerankerModel = *patch.RerankerModel
	}
	if patch.RerankerCandidateMultiplier != nil {
		next.RerankerCandidateMultiplier = *patch.RerankerCandidateMultiplier
	}
	if patch.UserCredentialID != nil {
		next.UserCredentialID = patch.UserCredentialID
	}
	if patch.OrgCredentialID != nil {
		next.OrgCredentialID = patch.OrgCredentialID
	}

	if err := next.ValidateTuning(); err != nil {
		return nil, err
	}
	if err := s.catalog.ValidateEmbeddingModel(next.EmbeddingBackend, next.EmbeddingModel); err != nil {
		return nil, err
	}
	if err := s.catalog.ValidateLLMModel(next.LLMBackend, next.LLMModel); err != nil {
		return nil, err
	}

	if err := s.projects.Save(dbc, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// RequestReindex enqueues a full project reindex for the worker.
func (s *ProjectService) RequestReindex(dbc dbctx.Context, projectID, userID uuid.UUID) error {
	project, err := s.owned(dbc, projectID, userID)
	if err != nil {
		return err
	}
	if project.IsReindexing() {
		return &types.ProjectReindexInProgressError{ID: projectID.String()}
	}
	if s.queue == nil {
		return nil
	}
	return s.queue.EnqueueReindex(dbc.Ctx, redisq.ReindexJob{ProjectID: projectID, UserID: userID})
}

func (s *ProjectService) owned(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Project, error) {
	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, &types.ProjectNotFoundError{ID: projectID.String()}
	}
	return project, nil
}

func validBackend(backend string) error {
	if backend == "" {
		return nil
	}
	if _, err := types.ParseModelProvider(backend); err != nil {
		return err
	}
	return nil
}
