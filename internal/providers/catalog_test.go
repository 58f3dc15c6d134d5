package providers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/raggae-backend/internal/domain"
)

func TestDefaultCatalogAllowsKnownModels(t *testing.T) {
	cat := DefaultCatalog()
	cases := []struct {
		provider string
		model    string
		llm      bool
	}{
		{"openai", "gpt-5.2", true},
		{"anthropic", "claude-opus-4-6-20260205", true},
		{"gemini", "gemini-3-flash-preview", true},
		{"inmemory", "inmemory-chat-fast", true},
		{"openai", "text-embedding-3-large", false},
		{"gemini", "gemini-embedding-001", false},
		{"inmemory", "inmemory-embed-balanced", false},
	}
	for _, tc := range cases {
		var err error
		if tc.llm {
			err = cat.ValidateLLMModel(tc.provider, tc.model)
		} else {
			err = cat.ValidateEmbeddingModel(tc.provider, tc.model)
		}
		if err != nil {
			t.Errorf("%s/%s rejected: %v", tc.provider, tc.model, err)
		}
	}
}

func TestCatalogRejectsUnknownModel(t *testing.T) {
	cat := DefaultCatalog()
	err := cat.ValidateLLMModel("openai", "gpt-2")
	var invalid *domain.InvalidModelError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidModelError", err)
	}
	if invalid.Provider != "openai" || invalid.Model != "gpt-2" {
		t.Fatalf("error fields = %+v", invalid)
	}
}

func TestCatalogEmptyModelPasses(t *testing.T) {
	cat := DefaultCatalog()
	if err := cat.ValidateLLMModel("openai", ""); err != nil {
		t.Fatalf("empty model rejected: %v", err)
	}
	if err := cat.ValidateEmbeddingModel("openai", "  "); err != nil {
		t.Fatalf("blank model rejected: %v", err)
	}
}

func TestLoadCatalogOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	contents := "llm_models:\n  openai:\n    - custom-finetune-1\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cat.ValidateLLMModel("openai", "custom-finetune-1"); err != nil {
		t.Fatalf("override model rejected: %v", err)
	}
	if err := cat.ValidateLLMModel("openai", "gpt-5.2"); err == nil {
		t.Fatal("override should replace the provider's model list")
	}
	// Providers absent from the file keep their defaults.
	if err := cat.ValidateLLMModel("anthropic", "claude-haiku-4-5-20251001"); err != nil {
		t.Fatalf("untouched provider broken: %v", err)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog("/nonexistent/catalog.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateAPIKeyFormat(t *testing.T) {
	cases := []struct {
		provider domain.ModelProvider
		key      string
		ok       bool
	}{
		{domain.ProviderOpenAI, "sk-abcdef123456", true},
		{domain.ProviderOpenAI, "bad-prefix", false},
		{domain.ProviderGemini, "AIzaSyExample", true},
		{domain.ProviderGemini, "sk-whatever", false},
		{domain.ProviderAnthropic, "sk-ant-example", true},
		{domain.ProviderAnthropic, "sk-example", false},
		{domain.ProviderOpenAI, "sk-", false},
		{domain.ProviderOllama, "anything-goes", true},
	}
	for _, tc := range cases {
		err := ValidateAPIKeyFormat(tc.provider, tc.key)
		if tc.ok && err != nil {
			t.Errorf("%s key %q rejected: %v", tc.provider, tc.key, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s key %q accepted", tc.provider, tc.key)
		}
	}
}
