package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

// ollamaMaxInputRunes caps per-text input so local models with small context
// windows do not truncate mid-embedding silently.
const ollamaMaxInputRunes = 7000

// OllamaEmbedder calls a local Ollama instance. Texts are embedded serially;
// local inference gains nothing from request-level concurrency.
type OllamaEmbedder struct {
	caller    *jsonCaller
	baseURL   string
	model     string
	dimension int
	log       *logger.Logger
}

func NewOllamaEmbedder(baseURL, model string, dimension int, timeout time.Duration, log *logger.Logger) *OllamaEmbedder {
	return &OllamaEmbedder{
		caller:    &jsonCaller{httpClient: &http.Client{Timeout: timeout}},
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		log:       log.With("provider", "ollama"),
	}
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }

func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if r := []rune(text); len(r) > ollamaMaxInputRunes {
			text = string(r[:ollamaMaxInputRunes])
		}
		var resp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		payload := map[string]string{"model": e.model, "input": text}
		if err := e.caller.do(ctx, http.MethodPost, e.baseURL+"/api/embed", payload, &resp); err != nil {
			return nil, &domain.EmbeddingError{Message: "Failed to generate embeddings", Cause: err}
		}
		if len(resp.Embeddings) == 0 {
			return nil, domain.NewEmbeddingError("empty embeddings response")
		}
		out = append(out, resp.Embeddings[0])
	}
	if err := validateDimensions(e.dimension, out); err != nil {
		return nil, err
	}
	return out, nil
}

// OllamaLLM calls /api/generate. Streaming responses arrive as one JSON
// object per line rather than SSE.
type OllamaLLM struct {
	caller    *jsonCaller
	baseURL   string
	model     string
	keepAlive string
	log       *logger.Logger
}

func NewOllamaLLM(baseURL, model, keepAlive string, timeout time.Duration, log *logger.Logger) *OllamaLLM {
	return &OllamaLLM{
		caller:    &jsonCaller{httpClient: &http.Client{Timeout: timeout}},
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		keepAlive: keepAlive,
		log:       log.With("provider", "ollama"),
	}
}

type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Stream    bool   `json:"stream"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

func (l *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaGenerateRequest{Model: l.model, Prompt: prompt, KeepAlive: l.keepAlive}
	var resp struct {
		Response string `json:"response"`
	}
	if err := l.caller.do(ctx, http.MethodPost, l.baseURL+"/api/generate", req, &resp); err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	return resp.Response, nil
}

func (l *OllamaLLM) Stream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error) {
	req := ollamaGenerateRequest{Model: l.model, Prompt: prompt, Stream: true, KeepAlive: l.keepAlive}
	resp, err := l.caller.stream(ctx, http.MethodPost, l.baseURL+"/api/generate", req)
	if err != nil {
		return "", &domain.LLMError{Message: "Failed to generate answer", Cause: err}
	}
	defer resp.Body.Close()

	var full strings.Builder
	br := bufio.NewReader(resp.Body)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			var chunk struct {
				Response string `json:"response"`
				Done     bool   `json:"done"`
				Error    string `json:"error"`
			}
			if uErr := json.Unmarshal(line, &chunk); uErr == nil {
				if chunk.Error != "" {
					return "", domain.NewLLMError("stream error: %s", chunk.Error)
				}
				if chunk.Response != "" {
					full.WriteString(chunk.Response)
					if onDelta != nil {
						onDelta(chunk.Response)
					}
				}
				if chunk.Done {
					return full.String(), nil
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return full.String(), nil
			}
			return "", &domain.LLMError{Message: "Failed to generate answer", Cause: readErr}
		}
	}
}
