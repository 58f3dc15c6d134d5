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

const openAIBaseURL = "https://api.openai.com"

// openAIEmbedBatchSize bounds a single embeddings request; larger inputs are
// split and the results reassembled in order.
const openAIEmbedBatchSize = 96

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	caller    *jsonCaller
	baseURL   string
	model     string
	dimension int
	log       *logger.Logger
}

func NewOpenAIEmbedder(apiKey, model string, dimension int, timeout time.Duration, log *logger.Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		caller: &jsonCaller{
			httpClient: &http.Client{Timeout: timeout},
			headers:    map[string]string{"Authorization": "Bearer " + apiKey},
		},
		baseURL:   openAIBaseURL,
		model:     model,
		dimension: dimension,
		log:       log.With("provider", "openai"),
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

type openAIEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIEmbedBatchSize {
		end := start + openAIEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	if err := validateDimensions(e.dimension, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	clean := make([]string, len(texts))
	for i := range texts {
		s := strings.TrimSpace(texts[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	var resp openAIEmbeddingsResponse
	req := openAIEmbeddingsRequest{Model: e.model, Input: clean}
	if err := e.caller.do(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", req, &resp); err != nil {
		return nil, &domain.EmbeddingError{Message: "Failed to generate embeddings", Cause: err}
	}
	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, domain.NewEmbeddingError("embeddings response missing index %d of %d", i, len(clean))
		}
	}
	return out, nil
}

// OpenAILLM calls chat completions, optionally streaming token deltas.
type OpenAILLM struct {
	caller  *jsonCaller
	baseURL string
	model   string
	log     *logger.Logger
}

func NewOpenAILLM(apiKey, model string, timeout time.Duration, log *logger.Logger) *OpenAILLM {
	return &OpenAILLM{
		caller: &jsonCaller{
			httpClient: &http.Client{Timeout: timeout},
			headers:    map[string]string{"Authorization": "Bearer " + apiKey},
		},
		baseURL: openAIBaseURL,
		model:   model,
		log:     log.With("provider", "openai"),
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
	Stream   bool                `json:"stream,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := openAIChatRequest{
		Model:    l.model,
		Messages: []openAIChatMessage{{Role: "user", Content: prompt}},
	}
	var resp openAIChatResponse
	if err := l.caller.do(ctx, http.MethodPost, l.baseURL+"/v1/chat/completions", req, &resp); err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewLLMError("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) Stream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error) {
	req := openAIChatRequest{
		Model:    l.model,
		Messages: []openAIChatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	}
	resp, err := l.caller.stream(ctx, http.MethodPost, l.baseURL+"/v1/chat/completions", req)
	if err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(_ string, data string) error {
		if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == "[DONE]" {
			return nil
		}
		var obj struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error json.RawMessage `json:"error"`
		}
		if uErr := json.Unmarshal([]byte(data), &obj); uErr != nil {
			return nil
		}
		if len(obj.Error) > 0 && string(obj.Error) != "null" {
			return domain.NewLLMError("stream error: %s", string(obj.Error))
		}
		for _, choice := range obj.Choices {
			if choice.Delta.Content != "" {
				full.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
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
