package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ChunkLevel string

const (
	ChunkLevelStandard ChunkLevel = "standard"
	ChunkLevelParent   ChunkLevel = "parent"
	ChunkLevelChild    ChunkLevel = "child"
)

// DocumentChunk is the indivisible retrieval unit. (document_id, chunk_index)
// is unique. Children carry the embedding used for vector search and point at
// a parent of level "parent" in the same document; parents carry the context
// surface handed to the LLM.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_document_chunk_index,priority:1" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"-"`

	ChunkIndex int    `gorm:"not null;uniqueIndex:uq_document_chunk_index,priority:2" json:"chunk_index"`
	Content    string `gorm:"type:text;not null" json:"content"`

	// NULL for parent rows; only standard and child chunks are embedded.
	Embedding *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`

	ChunkLevel    ChunkLevel `gorm:"type:varchar(16);not null;default:'standard'" json:"chunk_level"`
	ParentChunkID *uuid.UUID `gorm:"type:uuid;index" json:"parent_chunk_id,omitempty"`
	ParentChunk   *DocumentChunk `gorm:"constraint:OnDelete:CASCADE;foreignKey:ParentChunkID;references:ID" json:"-"`

	MetadataJSON datatypes.JSON `gorm:"type:jsonb;column:metadata_json" json:"metadata_json,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunks" }

// RetrievedChunk is the retrieval engine's scored projection of a chunk.
type RetrievedChunk struct {
	ChunkID          uuid.UUID  `json:"chunk_id"`
	DocumentID       uuid.UUID  `json:"document_id"`
	Content          string     `json:"content"`
	Score            float64    `json:"score"`
	ChunkIndex       *int       `json:"chunk_index,omitempty"`
	DocumentFileName string     `json:"document_file_name,omitempty"`
	VectorScore      *float64   `json:"vector_score,omitempty"`
	FulltextScore    *float64   `json:"fulltext_score,omitempty"`
	ChunkLevel       ChunkLevel `json:"chunk_level,omitempty"`
	ParentChunkID    *uuid.UUID `json:"parent_chunk_id,omitempty"`
}
