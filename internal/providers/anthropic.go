package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4096
)

// AnthropicLLM calls the Anthropic messages endpoint. Anthropic has no
// embeddings API, so it only participates as a chat backend.
type AnthropicLLM struct {
	caller  *jsonCaller
	baseURL string
	model   string
	log     *logger.Logger
}

func NewAnthropicLLM(apiKey, model string, timeout time.Duration, log *logger.Logger) *AnthropicLLM {
	return &AnthropicLLM{
		caller: &jsonCaller{
			httpClient: &http.Client{Timeout: timeout},
			headers: map[string]string{
				"x-api-key":         apiKey,
				"anthropic-version": anthropicAPIVersion,
			},
		},
		baseURL: anthropicBaseURL,
		model:   model,
		log:     log.With("provider", "anthropic"),
	}
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (l *AnthropicLLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := anthropicMessagesRequest{
		Model:     l.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	var resp anthropicMessagesResponse
	if err := l.caller.do(ctx, http.MethodPost, l.baseURL+"/v1/messages", req, &resp); err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", domain.NewLLMError("empty completion response")
	}
	return out.String(), nil
}

func (l *AnthropicLLM) Stream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error) {
	req := anthropicMessagesRequest{
		Model:     l.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		Stream:    true,
	}
	resp, err := l.caller.stream(ctx, http.MethodPost, l.baseURL+"/v1/messages", req)
	if err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(event string, data string) error {
		if strings.TrimSpace(data) == "" {
			return nil
		}
		var obj struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error json.RawMessage `json:"error"`
		}
		if uErr := json.Unmarshal([]byte(data), &obj); uErr != nil {
			return nil
		}
		switch obj.Type {
		case "error":
			return domain.NewLLMError("stream error: %s", string(obj.Error))
		case "content_block_delta":
			if obj.Delta.Type == "text_delta" && obj.Delta.Text != "" {
				full.WriteString(obj.Delta.Text)
				if onDelta != nil {
					onDelta(obj.Delta.Text)
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	return full.String(), nil
}
