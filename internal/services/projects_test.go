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
)

func newProjectFixture(t *testing.T) (*ProjectService, *fakeProjectRepo) {
	t.Helper()
	projects := &fakeProjectRepo{projects: map[uuid.UUID]*types.Project{}}
	svc := NewProjectService(app.Config{}, projects, nil, nil, testutil.Logger(t))
	return svc, projects
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

// seedTunedProject seeds an owned project whose tuning already passes the
// bounds, so patches exercise only the field under test.
func seedTunedProject(projects *fakeProjectRepo) (*types.Project, uuid.UUID) {
	project, userID := seedOwnedProject(projects)
	project.ChunkingStrategy = types.ChunkingAuto
	project.RetrievalStrategy = types.RetrievalHybrid
	project.RetrievalTopK = types.DefaultRetrievalTopK
	project.RetrievalMinScore = types.DefaultRetrievalMinScore
	project.ChatHistoryWindowSize = types.DefaultChatHistoryWindowSize
	project.ChatHistoryMaxChars = types.DefaultChatHistoryMaxChars
	project.RerankerCandidateMultiplier = types.DefaultRerankerCandidateMultiplier
	return project, userID
}

func TestCreateProjectAppliesDefaults(t *testing.T) {
	svc, _ := newProjectFixture(t)
	dbc := dbctx.New(context.Background())

	project, err := svc.Create(dbc, uuid.New(), "docs", "internal docs")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if project.RetrievalStrategy != types.RetrievalHybrid {
		t.Fatalf("strategy = %q, want hybrid", project.RetrievalStrategy)
	}
	if project.RetrievalTopK != types.DefaultRetrievalTopK {
		t.Fatalf("top_k = %d, want %d", project.RetrievalTopK, types.DefaultRetrievalTopK)
	}
	if project.ChunkingStrategy != types.ChunkingAuto {
		t.Fatalf("chunking = %q, want auto", project.ChunkingStrategy)
	}
}

func TestUpdateSettingsPersistsPatch(t *testing.T) {
	svc, projects := newProjectFixture(t)
	project, userID := seedTunedProject(projects)
	dbc := dbctx.New(context.Background())

	updated, err := svc.UpdateSettings(dbc, project.ID, userID, ProjectSettingsUpdate{
		Name:          strPtr("renamed"),
		RetrievalTopK: intPtr(12),
		LLMBackend:    strPtr("openai"),
		LLMModel:      strPtr("gpt-4.1-mini"),
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Name != "renamed" || updated.RetrievalTopK != 12 {
		t.Fatalf("patch not applied: %+v", updated)
	}
	stored := projects.projects[project.ID]
	if stored.LLMModel != "gpt-4.1-mini" {
		t.Fatalf("stored llm model = %q", stored.LLMModel)
	}
}

func TestUpdateSettingsRejectsOutOfBoundsTopK(t *testing.T) {
	svc, projects := newProjectFixture(t)
	project, userID := seedTunedProject(projects)
	dbc := dbctx.New(context.Background())

	_, err := svc.UpdateSettings(dbc, project.ID, userID, ProjectSettingsUpdate{
		RetrievalTopK: intPtr(types.MaxRetrievalTopK + 1),
	})
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdateSettingsRejectsModelOutsideCatalog(t *testing.T) {
	svc, projects := newProjectFixture(t)
	project, userID := seedTunedProject(projects)
	dbc := dbctx.New(context.Background())

	_, err := svc.UpdateSettings(dbc, project.ID, userID, ProjectSettingsUpdate{
		LLMBackend: strPtr("openai"),
		LLMModel:   strPtr("made-up-model"),
	})
	var invalid *types.InvalidModelError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidModelError", err)
	}
}

func TestUpdateSettingsPublishTransitions(t *testing.T) {
	svc, projects := newProjectFixture(t)
	project, userID := seedTunedProject(projects)
	dbc := dbctx.New(context.Background())

	updated, err := svc.UpdateSettings(dbc, project.ID, userID, ProjectSettingsUpdate{IsPublished: boolPtr(true)})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !updated.IsPublished {
		t.Fatal("project not published")
	}
	// Publishing an already-published project via the patch is a no-op.
	if _, err := svc.UpdateSettings(dbc, project.ID, userID, ProjectSettingsUpdate{IsPublished: boolPtr(true)}); err != nil {
		t.Fatalf("re-publish no-op: %v", err)
	}
}

func TestRequestReindexRejectsRunning(t *testing.T) {
	svc, projects := newProjectFixture(t)
	project, userID := seedOwnedProject(projects)
	project.ReindexStatus = types.ReindexRunning
	dbc := dbctx.New(context.Background())

	err := svc.RequestReindex(dbc, project.ID, userID)
	var inProgress *types.ProjectReindexInProgressError
	if !errors.As(err, &inProgress) {
		t.Fatalf("err = %v, want ProjectReindexInProgressError", err)
	}
}
