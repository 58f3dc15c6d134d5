package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiEmbedder calls the Gemini embedContent endpoint one text at a time;
// the API has no batch variant for arbitrary payload sizes.
type GeminiEmbedder struct {
	caller    *jsonCaller
	baseURL   string
	apiKey    string
	model     string
	dimension int
	log       *logger.Logger
}

func NewGeminiEmbedder(apiKey, model string, dimension int, timeout time.Duration, log *logger.Logger) *GeminiEmbedder {
	return &GeminiEmbedder{
		caller:    &jsonCaller{httpClient: &http.Client{Timeout: timeout}},
		baseURL:   geminiBaseURL,
		apiKey:    apiKey,
		model:     normalizeGeminiEmbedModel(model),
		dimension: dimension,
		log:       log.With("provider", "gemini"),
	}
}

// Deprecated aliases now return 404 from the API.
func normalizeGeminiEmbedModel(model string) string {
	switch model {
	case "embedding-001":
		return "text-embedding-004"
	default:
		return model
	}
}

func (e *GeminiEmbedder) Dimension() int { return e.dimension }

func (e *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.embedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	if err := validateDimensions(e.dimension, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GeminiEmbedder) embedSingle(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"content": map[string]any{
			"parts": []map[string]string{{"text": text}},
		},
	}
	if e.dimension > 0 {
		payload["outputDimensionality"] = e.dimension
	}
	var resp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)
	if err := e.caller.do(ctx, http.MethodPost, url, payload, &resp); err != nil {
		return nil, &domain.EmbeddingError{Message: "Failed to generate embeddings", Cause: err}
	}
	return resp.Embedding.Values, nil
}

// GeminiLLM calls generateContent, with streamGenerateContent for streaming.
type GeminiLLM struct {
	caller  *jsonCaller
	baseURL string
	apiKey  string
	model   string
	log     *logger.Logger
}

func NewGeminiLLM(apiKey, model string, timeout time.Duration, log *logger.Logger) *GeminiLLM {
	return &GeminiLLM{
		caller:  &jsonCaller{httpClient: &http.Client{Timeout: timeout}},
		baseURL: geminiBaseURL,
		apiKey:  apiKey,
		model:   model,
		log:     log.With("provider", "gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func geminiRequestFor(prompt string) geminiGenerateRequest {
	return geminiGenerateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
}

func (l *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	var resp geminiGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", l.baseURL, l.model, l.apiKey)
	if err := l.caller.do(ctx, http.MethodPost, url, geminiRequestFor(prompt), &resp); err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", domain.NewLLMError("empty completion response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GeminiLLM) Stream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", l.baseURL, l.model, l.apiKey)
	resp, err := l.caller.stream(ctx, http.MethodPost, url, geminiRequestFor(prompt))
	if err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(_ string, data string) error {
		if strings.TrimSpace(data) == "" {
			return nil
		}
		var chunk geminiGenerateResponse
		if uErr := json.Unmarshal([]byte(data), &chunk); uErr != nil {
			return nil
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				full.WriteString(part.Text)
				if onDelta != nil {
					onDelta(part.Text)
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
