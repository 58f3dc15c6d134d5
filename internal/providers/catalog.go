package providers

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/raggae-backend/internal/domain"
)

// Catalog is the closed set of models a project may select per provider.
// Validation happens on project update, never on read, so a catalog change
// does not break already-configured projects.
type Catalog struct {
	LLMModels       map[string]map[string]bool
	EmbeddingModels map[string]map[string]bool
}

// DefaultCatalog returns the built-in model sets.
func DefaultCatalog() *Catalog {
	return &Catalog{
		LLMModels: modelSet(map[string][]string{
			"openai": {
				"gpt-5.2", "gpt-5.2-pro", "gpt-5.1", "gpt-5", "gpt-5-mini", "gpt-5-nano",
				"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
			},
			"gemini": {
				"gemini-3.1-pro-preview", "gemini-3-flash-preview", "gemini-3-deep-think-preview",
			},
			"anthropic": {
				"claude-opus-4-6-20260205", "claude-opus-4-5-20251101",
				"claude-sonnet-4-6-20260217", "claude-sonnet-4-20250514",
				"claude-haiku-4-5-20251001",
			},
			"inmemory": {
				"inmemory-chat-accurate", "inmemory-chat-balanced", "inmemory-chat-fast",
			},
		}),
		EmbeddingModels: modelSet(map[string][]string{
			"openai": {
				"text-embedding-3-large", "text-embedding-3-small", "text-embedding-ada-002",
			},
			"gemini": {
				"gemini-embedding-001", "text-multilingual-embedding-002",
			},
			"inmemory": {
				"inmemory-embed-accurate", "inmemory-embed-balanced", "inmemory-embed-fast",
			},
		}),
	}
}

// catalogFile is the on-disk override shape:
//
//	llm_models:
//	  openai: [gpt-5.2, ...]
//	embedding_models:
//	  gemini: [gemini-embedding-001]
type catalogFile struct {
	LLMModels       map[string][]string `yaml:"llm_models"`
	EmbeddingModels map[string][]string `yaml:"embedding_models"`
}

// LoadCatalog returns the default catalog, with per-provider overrides merged
// from the YAML file at path when non-empty. An override replaces the whole
// model list for that provider.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	for provider, models := range modelSet(file.LLMModels) {
		cat.LLMModels[provider] = models
	}
	for provider, models := range modelSet(file.EmbeddingModels) {
		cat.EmbeddingModels[provider] = models
	}
	return cat, nil
}

// ValidateLLMModel rejects models outside the catalog for known providers.
// Unknown providers pass through; ParseModelProvider rejects those earlier.
func (c *Catalog) ValidateLLMModel(provider, model string) error {
	return validateModel(c.LLMModels, provider, model)
}

func (c *Catalog) ValidateEmbeddingModel(provider, model string) error {
	return validateModel(c.EmbeddingModels, provider, model)
}

func validateModel(sets map[string]map[string]bool, provider, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil
	}
	allowed, ok := sets[strings.TrimSpace(strings.ToLower(provider))]
	if !ok {
		return nil
	}
	if !allowed[model] {
		return &domain.InvalidModelError{Provider: provider, Model: model}
	}
	return nil
}

func modelSet(in map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(in))
	for provider, models := range in {
		set := make(map[string]bool, len(models))
		for _, m := range models {
			set[strings.TrimSpace(m)] = true
		}
		out[provider] = set
	}
	return out
}
