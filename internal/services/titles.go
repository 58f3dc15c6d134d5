package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/providers"
)

const titleInstruction = "Generate a short conversation title (max 8 words). Return only the title, no punctuation at the end."

// TitleService names a conversation after its first exchange. Generation is
// best-effort: on any model failure it falls back to a truncated form of the
// user's message and never returns an error to the chat flow.
type TitleService struct {
	conversations repos.ConversationRepo
	log           *logger.Logger
}

func NewTitleService(conversations repos.ConversationRepo, log *logger.Logger) *TitleService {
	return &TitleService{conversations: conversations, log: log.With("service", "TitleService")}
}

// GenerateTitle asks the LLM for a title based on the first user/assistant
// exchange, falling back to the user message when generation fails or comes
// back empty.
func (s *TitleService) GenerateTitle(ctx context.Context, llm providers.LLM, userMessage, assistantAnswer string) string {
	prompt := fmt.Sprintf("%s\n\nUser message: %s\nAssistant answer: %s",
		titleInstruction, strings.TrimSpace(userMessage), strings.TrimSpace(assistantAnswer))

	raw, err := llm.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("title generation failed, using fallback", "error", err)
		return fallbackTitle(userMessage)
	}
	title := types.NormalizeTitle(raw)
	if title == "" {
		return fallbackTitle(userMessage)
	}
	return title
}

// SetTitleIfUnset generates and persists a title for a conversation that still
// carries the default name. Safe to call from a detached goroutine.
func (s *TitleService) SetTitleIfUnset(dbc dbctx.Context, llm providers.LLM, conversationID uuid.UUID, userMessage, assistantAnswer string) {
	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil {
		s.log.Warn("title lookup failed", "conversation_id", conversationID, "error", err)
		return
	}
	if conv.Title != "" && conv.Title != types.DefaultConversationTitle {
		return
	}
	title := s.GenerateTitle(dbc.Ctx, llm, userMessage, assistantAnswer)
	if err := s.conversations.UpdateTitle(dbc, conversationID, title); err != nil {
		s.log.Warn("title update failed", "conversation_id", conversationID, "error", err)
	}
}

func fallbackTitle(userMessage string) string {
	title := types.NormalizeTitle(userMessage)
	if title == "" {
		return types.DefaultConversationTitle
	}
	return title
}
