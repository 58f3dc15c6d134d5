package providers

import (
	"strings"

	"github.com/yungbote/raggae-backend/internal/domain"
)

var keyPrefixByProvider = map[domain.ModelProvider]string{
	domain.ProviderOpenAI:    "sk-",
	domain.ProviderGemini:    "AIza",
	domain.ProviderAnthropic: "sk-ant-",
}

// ValidateAPIKeyFormat performs a cheap shape check before a key is accepted
// for storage. It never calls the provider.
func ValidateAPIKeyFormat(provider domain.ModelProvider, apiKey string) error {
	normalized := strings.TrimSpace(apiKey)
	if len(normalized) < 4 {
		return domain.ErrInvalidArgument
	}
	if prefix, ok := keyPrefixByProvider[provider]; ok && !strings.HasPrefix(normalized, prefix) {
		return domain.ErrInvalidArgument
	}
	return nil
}
