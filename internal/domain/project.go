package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChunkingStrategy string

const (
	ChunkingAuto           ChunkingStrategy = "auto"
	ChunkingFixedWindow    ChunkingStrategy = "fixed_window"
	ChunkingParagraph      ChunkingStrategy = "paragraph"
	ChunkingHeadingSection ChunkingStrategy = "heading_section"
	ChunkingSemantic       ChunkingStrategy = "semantic"
)

type RetrievalStrategy string

const (
	RetrievalVector   RetrievalStrategy = "vector"
	RetrievalFulltext RetrievalStrategy = "fulltext"
	RetrievalHybrid   RetrievalStrategy = "hybrid"
)

type ReindexStatus string

const (
	ReindexIdle    ReindexStatus = "idle"
	ReindexRunning ReindexStatus = "running"
	ReindexFailed  ReindexStatus = "failed"
)

// Project tuning bounds, enforced in code and mirrored as CHECK constraints.
const (
	MaxProjectSystemPromptLength = 8000

	MinRetrievalTopK     = 1
	MaxRetrievalTopK     = 40
	DefaultRetrievalTopK = 8

	MinRetrievalMinScore     = 0.0
	MaxRetrievalMinScore     = 1.0
	DefaultRetrievalMinScore = 0.3

	MinChatHistoryWindowSize     = 1
	MaxChatHistoryWindowSize     = 40
	DefaultChatHistoryWindowSize = 8

	MinChatHistoryMaxChars     = 128
	MaxChatHistoryMaxChars     = 16000
	DefaultChatHistoryMaxChars = 4000

	MinRerankerCandidateMultiplier     = 1
	MaxRerankerCandidateMultiplier     = 10
	DefaultRerankerCandidateMultiplier = 3
)

// Project is a RAG workspace with per-project tuning knobs. Mutations go
// through the copy-mutators below; persistence sees whole rows.
type Project struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`

	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Description  string `gorm:"type:text;not null;default:''" json:"description"`
	SystemPrompt string `gorm:"type:text;not null;default:''" json:"system_prompt"`
	IsPublished  bool   `gorm:"not null;default:false" json:"is_published"`

	ChunkingStrategy    ChunkingStrategy `gorm:"type:varchar(32);not null;default:'auto'" json:"chunking_strategy"`
	ParentChildChunking bool             `gorm:"not null;default:false" json:"parent_child_chunking"`

	RetrievalStrategy RetrievalStrategy `gorm:"type:varchar(16);not null;default:'hybrid'" json:"retrieval_strategy"`
	RetrievalTopK     int               `gorm:"not null;default:8" json:"retrieval_top_k"`
	RetrievalMinScore float64           `gorm:"not null;default:0.3" json:"retrieval_min_score"`

	ChatHistoryWindowSize int `gorm:"not null;default:8" json:"chat_history_window_size"`
	ChatHistoryMaxChars   int `gorm:"not null;default:4000" json:"chat_history_max_chars"`

	RerankingEnabled            bool   `gorm:"not null;default:false" json:"reranking_enabled"`
	RerankerBackend             string `gorm:"type:varchar(32)" json:"reranker_backend,omitempty"`
	RerankerModel               string `gorm:"type:varchar(128)" json:"reranker_model,omitempty"`
	RerankerCandidateMultiplier int    `gorm:"not null;default:3" json:"reranker_candidate_multiplier"`

	EmbeddingBackend string `gorm:"type:varchar(32)" json:"embedding_backend,omitempty"`
	EmbeddingModel   string `gorm:"type:varchar(128)" json:"embedding_model,omitempty"`
	LLMBackend       string `gorm:"column:llm_backend;type:varchar(32)" json:"llm_backend,omitempty"`
	LLMModel         string `gorm:"column:llm_model;type:varchar(128)" json:"llm_model,omitempty"`

	UserCredentialID *uuid.UUID `gorm:"type:uuid" json:"user_credential_id,omitempty"`
	OrgCredentialID  *uuid.UUID `gorm:"type:uuid" json:"org_credential_id,omitempty"`

	ReindexStatus   ReindexStatus `gorm:"type:varchar(16);not null;default:'idle'" json:"reindex_status"`
	ReindexProgress int           `gorm:"not null;default:0" json:"reindex_progress"`
	ReindexTotal    int           `gorm:"not null;default:0" json:"reindex_total"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p Project) Publish() (Project, error) {
	if p.IsPublished {
		return p, &ProjectAlreadyPublishedError{}
	}
	p.IsPublished = true
	return p, nil
}

func (p Project) Unpublish() (Project, error) {
	if !p.IsPublished {
		return p, &ProjectNotPublishedError{}
	}
	p.IsPublished = false
	return p, nil
}

func (p Project) WithSystemPrompt(prompt string) (Project, error) {
	if len(prompt) > MaxProjectSystemPromptLength {
		return p, ErrInvalidArgument
	}
	p.SystemPrompt = prompt
	return p, nil
}

func (p Project) IsReindexing() bool { return p.ReindexStatus == ReindexRunning }

func (p Project) StartReindex(totalDocuments int) (Project, error) {
	if p.IsReindexing() {
		return p, &ProjectReindexInProgressError{ID: p.ID.String()}
	}
	if totalDocuments < 0 {
		totalDocuments = 0
	}
	p.ReindexStatus = ReindexRunning
	p.ReindexProgress = 0
	p.ReindexTotal = totalDocuments
	return p, nil
}

// AdvanceReindex bumps progress by one; counters never decrease.
func (p Project) AdvanceReindex() Project {
	if !p.IsReindexing() {
		return p
	}
	if p.ReindexProgress < p.ReindexTotal {
		p.ReindexProgress++
	}
	return p
}

func (p Project) FinishReindex(anyFailed bool) Project {
	if anyFailed {
		p.ReindexStatus = ReindexFailed
	} else {
		p.ReindexStatus = ReindexIdle
	}
	return p
}

// ValidateTuning checks the tuning bounds. Applied on update, not on read.
func (p Project) ValidateTuning() error {
	if p.RetrievalTopK < MinRetrievalTopK || p.RetrievalTopK > MaxRetrievalTopK {
		return ErrInvalidArgument
	}
	if p.RetrievalMinScore < MinRetrievalMinScore || p.RetrievalMinScore > MaxRetrievalMinScore {
		return ErrInvalidArgument
	}
	if p.ChatHistoryWindowSize < MinChatHistoryWindowSize || p.ChatHistoryWindowSize > MaxChatHistoryWindowSize {
		return ErrInvalidArgument
	}
	if p.ChatHistoryMaxChars < MinChatHistoryMaxChars || p.ChatHistoryMaxChars > MaxChatHistoryMaxChars {
		return ErrInvalidArgument
	}
	if p.RerankerCandidateMultiplier < MinRerankerCandidateMultiplier || p.RerankerCandidateMultiplier > MaxRerankerCandidateMultiplier {
		return ErrInvalidArgument
	}
	if len(p.SystemPrompt) > MaxProjectSystemPromptLength {
		return ErrInvalidArgument
	}
	switch p.RetrievalStrategy {
	case RetrievalVector, RetrievalFulltext, RetrievalHybrid:
	default:
		return ErrInvalidArgument
	}
	switch p.ChunkingStrategy {
	case ChunkingAuto, ChunkingFixedWindow, ChunkingParagraph, ChunkingHeadingSection, ChunkingSemantic:
	default:
		return ErrInvalidArgument
	}
	return nil
}

func ParseChunkingStrategy(s string) (ChunkingStrategy, error) {
	switch ChunkingStrategy(strings.TrimSpace(strings.ToLower(s))) {
	case ChunkingAuto:
		return ChunkingAuto, nil
	case ChunkingFixedWindow:
		return ChunkingFixedWindow, nil
	case ChunkingParagraph:
		return ChunkingParagraph, nil
	case ChunkingHeadingSection:
		return ChunkingHeadingSection, nil
	case ChunkingSemantic:
		return ChunkingSemantic, nil
	default:
		return "", ErrInvalidArgument
	}
}
