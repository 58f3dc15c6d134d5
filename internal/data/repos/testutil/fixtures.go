package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/yungbote/raggae-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "x",
		FullName:     "Test User",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedOrg(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Organization {
	tb.Helper()
	o := &types.Organization{ID: uuid.New(), Name: name}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed org: %v", err)
	}
	return o
}

func SeedOrgMember(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) *types.OrganizationMember {
	tb.Helper()
	m := &types.OrganizationMember{
		ID:             uuid.New(),
		OrganizationID: orgID,
		UserID:         userID,
		Role:           types.OrgRoleMember,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed org member: %v", err)
	}
	return m
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:                          uuid.New(),
		UserID:                      userID,
		Name:                        "project",
		ChunkingStrategy:            types.ChunkingAuto,
		RetrievalStrategy:           types.RetrievalHybrid,
		RetrievalTopK:               types.DefaultRetrievalTopK,
		RetrievalMinScore:           types.DefaultRetrievalMinScore,
		ChatHistoryWindowSize:       types.DefaultChatHistoryWindowSize,
		ChatHistoryMaxChars:         types.DefaultChatHistoryMaxChars,
		RerankerCandidateMultiplier: types.DefaultRerankerCandidateMultiplier,
		ReindexStatus:               types.ReindexIdle,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, status types.DocumentStatus) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:          uuid.New(),
		ProjectID:   projectID,
		FileName:    "doc.txt",
		ContentType: "text/plain",
		FileSize:    64,
		StorageKey:  fmt.Sprintf("projects/%s/%s", projectID, uuid.New()),
		Status:      status,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, index int, content string, embedding []float32) *types.DocumentChunk {
	tb.Helper()
	c := &types.DocumentChunk{
		ID:         uuid.New(),
		DocumentID: documentID,
		ChunkIndex: index,
		Content:    content,
		ChunkLevel: types.ChunkLevelStandard,
	}
	if embedding != nil {
		v := pgvector.NewVector(embedding)
		c.Embedding = &v
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, userID uuid.UUID) *types.Conversation {
	tb.Helper()
	c := &types.Conversation{
		ID:        uuid.New(),
		ProjectID: projectID,
		UserID:    userID,
		Title:     types.DefaultConversationTitle,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	return c
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, role types.MessageRole, content string) *types.Message {
	tb.Helper()
	m := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}
