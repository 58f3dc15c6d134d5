package providers

import (
	"context"
	"crypto/sha256"
	"strings"
)

// InMemoryEmbedder derives deterministic vectors from a SHA-256 of the text.
// It backs tests and development setups where no provider is reachable; the
// vectors have no semantic meaning but are stable across runs.
type InMemoryEmbedder struct {
	dimension int
}

func NewInMemoryEmbedder(dimension int) *InMemoryEmbedder {
	if dimension <= 0 {
		dimension = 16
	}
	return &InMemoryEmbedder{dimension: dimension}
}

func (e *InMemoryEmbedder) Dimension() int { return e.dimension }

func (e *InMemoryEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, e.embedSingle(text))
	}
	return out, nil
}

func (e *InMemoryEmbedder) embedSingle(text string) []float32 {
	digest := sha256.Sum256([]byte(text))
	values := make([]float32, 0, len(digest))
	for _, b := range digest {
		values = append(values, float32(b)/255.0)
	}
	if e.dimension <= len(values) {
		return values[:e.dimension]
	}
	out := make([]float32, 0, e.dimension)
	for len(out) < e.dimension {
		remaining := e.dimension - len(out)
		if remaining >= len(values) {
			out = append(out, values...)
		} else {
			out = append(out, values[:remaining]...)
		}
	}
	return out
}

// InMemoryLLM produces a deterministic answer from the prompt, echoing the
// first context line when one is present. Useful for tests and the default
// zero-config deployment.
type InMemoryLLM struct{}

func NewInMemoryLLM() *InMemoryLLM { return &InMemoryLLM{} }

func (l *InMemoryLLM) Generate(_ context.Context, prompt string) (string, error) {
	return synthesizeAnswer(prompt), nil
}

func (l *InMemoryLLM) Stream(_ context.Context, prompt string, onDelta func(delta string)) (string, error) {
	answer := synthesizeAnswer(prompt)
	if onDelta != nil {
		for _, word := range strings.SplitAfter(answer, " ") {
			onDelta(word)
		}
	}
	return answer, nil
}

func synthesizeAnswer(prompt string) string {
	_, after, found := strings.Cut(prompt, "Context:\n")
	if !found {
		return "I do not know."
	}
	context, _, _ := strings.Cut(after, "\nUser query:")
	for _, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "No context available." || strings.HasPrefix(line, "---") {
			continue
		}
		return "Based on the provided context: " + line
	}
	return "I do not know."
}
