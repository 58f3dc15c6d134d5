package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentIndexed    DocumentStatus = "indexed"
	DocumentError      DocumentStatus = "error"
)

// ErrorMessageMaxLength matches the column width; longer messages are
// truncated before persistence.
const ErrorMessageMaxLength = 2000

// Document is a stored blob reference plus extracted metadata. Status
// transitions go through TransitionTo, which enforces the FSM:
// uploaded -> processing -> {indexed|error}; indexed -> processing (reindex);
// error -> processing (retry).
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"-"`

	FileName    string `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType string `gorm:"type:varchar(128);not null" json:"content_type"`
	FileSize    int64  `gorm:"not null" json:"file_size"`
	StorageKey  string `gorm:"type:varchar(1024);not null" json:"storage_key"`

	ProcessingStrategy *ChunkingStrategy `gorm:"type:varchar(32)" json:"processing_strategy,omitempty"`
	Status             DocumentStatus    `gorm:"type:varchar(16);not null;default:'uploaded'" json:"status"`
	ErrorMessage       string            `gorm:"type:text" json:"error_message,omitempty"`

	Language      string          `gorm:"type:varchar(8)" json:"language,omitempty"`
	Keywords      datatypes.JSON  `gorm:"type:jsonb" json:"keywords,omitempty"`
	Authors       datatypes.JSON  `gorm:"type:jsonb" json:"authors,omitempty"`
	DocumentDate  *time.Time      `gorm:"type:date" json:"document_date,omitempty"`
	Title         string          `gorm:"type:varchar(512)" json:"title,omitempty"`
	LastIndexedAt *time.Time      `json:"last_indexed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentUploaded:   {DocumentProcessing},
	DocumentProcessing: {DocumentIndexed, DocumentError},
	DocumentIndexed:    {DocumentProcessing},
	DocumentError:      {DocumentProcessing},
}

// TransitionTo returns a copy in the new status, or an
// InvalidDocumentStatusTransitionError for transitions outside the FSM.
// Entering error stores a truncated message; leaving it clears the message.
func (d Document) TransitionTo(status DocumentStatus, errorMessage string) (Document, error) {
	allowed := false
	for _, next := range documentTransitions[d.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return d, &InvalidDocumentStatusTransitionError{From: d.Status, To: status}
	}
	d.Status = status
	switch status {
	case DocumentError:
		d.ErrorMessage = truncate(errorMessage, ErrorMessageMaxLength)
	default:
		d.ErrorMessage = ""
	}
	return d, nil
}

func (d Document) WithProcessingStrategy(strategy ChunkingStrategy) Document {
	d.ProcessingStrategy = &strategy
	return d
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
