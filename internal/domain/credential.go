package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ModelProvider string

const (
	ProviderOpenAI    ModelProvider = "openai"
	ProviderGemini    ModelProvider = "gemini"
	ProviderAnthropic ModelProvider = "anthropic"
	ProviderOllama    ModelProvider = "ollama"
	ProviderInMemory  ModelProvider = "inmemory"
)

func ParseModelProvider(s string) (ModelProvider, error) {
	switch ModelProvider(strings.TrimSpace(strings.ToLower(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderInMemory:
		return ProviderInMemory, nil
	default:
		return "", &InvalidProviderError{Provider: s}
	}
}

// CredentialProviders are the providers that accept stored API keys.
var CredentialProviders = []ModelProvider{ProviderOpenAI, ProviderGemini, ProviderAnthropic}

// UserProviderCredential stores an encrypted provider API key owned by a
// user. Several rows per (user, provider) may exist; at most one active is
// enforced at the application layer so keys can rotate without a lock.
type UserProviderCredential struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Provider        ModelProvider `gorm:"type:varchar(32);not null;index" json:"provider"`
	EncryptedAPIKey string        `gorm:"type:text;not null" json:"-"`
	KeyFingerprint  string        `gorm:"type:varchar(128);not null" json:"key_fingerprint"`
	KeySuffix       string        `gorm:"type:varchar(16);not null" json:"key_suffix"`
	IsActive        bool          `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserProviderCredential) TableName() string { return "user_model_provider_credentials" }

// MaskedKey renders the stored suffix for display.
func (c UserProviderCredential) MaskedKey() string { return "..." + c.KeySuffix }

// OrgProviderCredential is the organization-scoped variant.
type OrgProviderCredential struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`

	Provider        ModelProvider `gorm:"type:varchar(32);not null;index" json:"provider"`
	EncryptedAPIKey string        `gorm:"type:text;not null" json:"-"`
	KeyFingerprint  string        `gorm:"type:varchar(128);not null" json:"key_fingerprint"`
	KeySuffix       string        `gorm:"type:varchar(16);not null" json:"key_suffix"`
	IsActive        bool          `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (OrgProviderCredential) TableName() string { return "org_model_provider_credentials" }

func (c OrgProviderCredential) MaskedKey() string { return "..." + c.KeySuffix }

// MaskKeySuffix returns the last four characters of a plaintext key.
func MaskKeySuffix(raw string) string {
	if len(raw) <= 4 {
		return raw
	}
	return raw[len(raw)-4:]
}
