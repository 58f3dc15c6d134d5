package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DefaultConversationTitle   = "New conversation"
	MaxConversationTitleLength = 80
)

// Conversation is an ordered message log scoped to (project, user).
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title string `gorm:"type:varchar(255)" json:"title,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is append-only. LLMPrompt stores the exact prompt sent for the
// assistant turn; SourceDocuments aggregates the grounding documents.
type Message struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID     `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Conversation   *Conversation `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConversationID;references:ID" json:"-"`

	Role    MessageRole `gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')" json:"role"`
	Content string      `gorm:"type:text;not null" json:"content"`

	LLMPrompt          string         `gorm:"column:llm_prompt;type:text" json:"llm_prompt,omitempty"`
	ReliabilityPercent *int           `json:"reliability_percent,omitempty"`
	SourceDocuments    datatypes.JSON `gorm:"type:jsonb" json:"source_documents,omitempty"`
	Cancelled          bool           `gorm:"not null;default:false" json:"cancelled"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// NormalizeTitle trims and caps a generated conversation title, dropping
// trailing punctuation.
func NormalizeTitle(value string) string {
	trimmed := []rune(strings.TrimSpace(value))
	if len(trimmed) > MaxConversationTitleLength {
		trimmed = trimmed[:MaxConversationTitleLength]
	}
	out := strings.TrimSpace(string(trimmed))
	for len(out) > 0 {
		last := out[len(out)-1]
		if last == '.' || last == '!' || last == '?' || last == ',' || last == ';' || last == ':' {
			out = strings.TrimSpace(out[:len(out)-1])
			continue
		}
		break
	}
	return out
}
