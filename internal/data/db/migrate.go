package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/raggae-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Identity + tenancy
		// =========================
		&types.User{},
		&types.Organization{},
		&types.OrganizationMember{},

		// =========================
		// Provider credentials
		// =========================
		&types.UserProviderCredential{},
		&types.OrgProviderCredential{},

		// =========================
		// Knowledge base
		// =========================
		&types.Project{},
		&types.Document{},
		&types.DocumentChunk{},

		// =========================
		// Chat
		// =========================
		&types.Conversation{},
		&types.Message{},
	)
}

// EnsureEmbeddingDimension widens or narrows the chunk embedding column to
// the configured dimension. Existing vectors cannot be reshaped, so a
// dimension change clears them; affected documents must be reindexed.
func EnsureEmbeddingDimension(db *gorm.DB, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	var current int
	row := db.Raw(`
		SELECT COALESCE(a.atttypmod, -1)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'document_chunks' AND a.attname = 'embedding';
	`).Row()
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	if current == dimension {
		return nil
	}
	if err := db.Exec(fmt.Sprintf(`
		ALTER TABLE document_chunks
		ALTER COLUMN embedding TYPE vector(%d)
		USING NULL;
	`, dimension)).Error; err != nil {
		return fmt.Errorf("alter embedding dimension: %w", err)
	}
	return nil
}

func EnsureRetrievalIndexes(db *gorm.DB) error {
	// Dense retrieval: approximate nearest neighbour over cosine distance.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding_hnsw
		ON document_chunks
		USING hnsw (embedding vector_cosine_ops);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunks_embedding_hnsw: %w", err)
	}

	// Lexical retrieval: language-neutral FTS so French and English content
	// rank through the same configuration.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_fts
		ON document_chunks
		USING GIN (to_tsvector('simple', content));
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunks_fts: %w", err)
	}

	// Trigram fallback for queries the tsquery parser yields nothing on.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_trgm
		ON document_chunks
		USING GIN (content gin_trgm_ops);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunks_trgm: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_metadata
		ON document_chunks
		USING GIN (metadata_json jsonb_path_ops);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunks_metadata: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_document_level
		ON document_chunks (document_id, chunk_level);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunks_document_level: %w", err)
	}

	return nil
}

func EnsureChatIndexes(db *gorm.DB) error {
	// Fast history pagination per conversation.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
		ON messages (conversation_id, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_messages_conversation_created: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_project_user_updated
		ON conversations (project_id, user_id, updated_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_conversations_project_user_updated: %w", err)
	}

	return nil
}

func EnsureCredentialIndexes(db *gorm.DB) error {
	// At most one active credential per (owner, provider).
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_credentials_active
		ON user_model_provider_credentials (user_id, provider)
		WHERE is_active;
	`).Error; err != nil {
		return fmt.Errorf("create idx_user_credentials_active: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_org_credentials_active
		ON org_model_provider_credentials (organization_id, provider)
		WHERE is_active;
	`).Error; err != nil {
		return fmt.Errorf("create idx_org_credentials_active: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll(embeddingDimension int) error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureEmbeddingDimension(s.db, embeddingDimension); err != nil {
		s.log.Error("Embedding dimension migration failed", "error", err)
		return err
	}
	if err := EnsureRetrievalIndexes(s.db); err != nil {
		s.log.Error("Retrieval index migration failed", "error", err)
		return err
	}
	if err := EnsureChatIndexes(s.db); err != nil {
		s.log.Error("Chat index migration failed", "error", err)
		return err
	}
	if err := EnsureCredentialIndexes(s.db); err != nil {
		s.log.Error("Credential index migration failed", "error", err)
		return err
	}
	return nil
}
