package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/raggae-backend/internal/domain"
)

// SentenceEmbedder is the slice of the embedding contract the semantic
// strategy needs.
type SentenceEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

const defaultSemanticSimilarityThreshold = 0.65

// Chunker dispatches sanitized text to the strategy-specific splitters.
// Lengths are measured in runes so multi-byte content chunks the same as
// ASCII.
type Chunker struct {
	ChunkSize         int
	ChunkOverlap      int
	ContextWindowSize int

	// Embedder backs the semantic strategy; when nil semantic falls back
	// to fixed-window.
	Embedder            SentenceEmbedder
	SimilarityThreshold float64
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{
		ChunkSize:           chunkSize,
		ChunkOverlap:        chunkOverlap,
		SimilarityThreshold: defaultSemanticSimilarityThreshold,
	}
}

// Chunk splits text per the given strategy. Auto must be resolved by the
// caller (via Analyze + SelectStrategy) before reaching here.
func (c *Chunker) Chunk(ctx context.Context, text string, strategy types.ChunkingStrategy) ([]string, error) {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return []string{}, nil
	}
	switch strategy {
	case types.ChunkingParagraph:
		return c.applyContextWindow(c.chunkParagraphs(normalized)), nil
	case types.ChunkingHeadingSection:
		return c.applyContextWindow(c.chunkHeadingSections(normalized)), nil
	case types.ChunkingSemantic:
		if c.Embedder == nil {
			return c.chunkFixedWindow(normalized), nil
		}
		chunks, err := c.chunkSemantic(ctx, normalized)
		if err != nil {
			return nil, err
		}
		return c.applyContextWindow(chunks), nil
	case types.ChunkingFixedWindow:
		return c.chunkFixedWindow(normalized), nil
	case types.ChunkingAuto:
		return nil, fmt.Errorf("auto strategy must be resolved before chunking")
	default:
		return c.chunkFixedWindow(normalized), nil
	}
}

func (c *Chunker) chunkFixedWindow(text string) []string {
	runes := []rune(text)
	step := c.ChunkSize - c.ChunkOverlap
	if step < 1 {
		step = 1
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// chunkParagraphs packs whole paragraphs greedily up to ChunkSize. A
// paragraph is never split, even when alone it exceeds the budget.
func (c *Chunker) chunkParagraphs(text string) []string {
	paragraphs := SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}
	var chunks []string
	current := paragraphs[0]
	for _, paragraph := range paragraphs[1:] {
		candidate := current + "\n\n" + paragraph
		if utf8.RuneCountInString(candidate) <= c.ChunkSize {
			current = candidate
			continue
		}
		chunks = append(chunks, current)
		current = paragraph
	}
	return append(chunks, current)
}

// chunkHeadingSections splits at heading lines; oversized sections fall back
// to fixed windows.
func (c *Chunker) chunkHeadingSections(text string) []string {
	var sections []string
	var currentLines []string
	for _, line := range strings.Split(text, "\n") {
		if isHeadingLine(strings.TrimSpace(line)) && len(currentLines) > 0 {
			if section := strings.TrimSpace(strings.Join(currentLines, "\n")); section != "" {
				sections = append(sections, section)
			}
			currentLines = []string{line}
			continue
		}
		currentLines = append(currentLines, line)
	}
	if section := strings.TrimSpace(strings.Join(currentLines, "\n")); section != "" {
		sections = append(sections, section)
	}

	var chunks []string
	for _, section := range sections {
		if utf8.RuneCountInString(section) <= c.ChunkSize {
			chunks = append(chunks, section)
			continue
		}
		fallback := c.chunkFixedWindow(section)
		if len(fallback) == 0 {
			fallback = []string{section}
		}
		chunks = append(chunks, fallback...)
	}
	return chunks
}

func (c *Chunker) chunkSemantic(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []string{}, nil
	}
	if len(sentences) == 1 {
		return c.splitLargeChunk(sentences[0]), nil
	}

	embeddings, err := c.Embedder.EmbedTexts(ctx, sentences)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(sentences) {
		return nil, fmt.Errorf("sentence embedding count mismatch: got %d, want %d", len(embeddings), len(sentences))
	}

	threshold := c.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultSemanticSimilarityThreshold
	}

	var chunks []string
	var current []string
	currentLen := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, c.splitLargeChunk(strings.Join(current, " "))...)
			current = nil
			currentLen = 0
		}
	}
	for i, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)
		if len(current) > 0 && currentLen+1+sentenceLen > c.ChunkSize {
			flush()
		}
		if len(current) > 0 {
			if cosineSimilarity(embeddings[i-1], embeddings[i]) < threshold {
				flush()
			}
		}
		current = append(current, sentence)
		if currentLen == 0 {
			currentLen = sentenceLen
		} else {
			currentLen += 1 + sentenceLen
		}
	}
	flush()
	return chunks, nil
}

func (c *Chunker) splitLargeChunk(chunk string) []string {
	normalized := strings.TrimSpace(chunk)
	if normalized == "" {
		return nil
	}
	runes := []rune(normalized)
	if len(runes) <= c.ChunkSize {
		return []string{normalized}
	}
	overlap := c.ChunkOverlap
	if overlap >= c.ChunkSize {
		overlap = c.ChunkSize - 1
	}
	var parts []string
	start := 0
	for start < len(runes) {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			parts = append(parts, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return parts
}

// applyContextWindow prepends the tail of the previous chunk to each chunk so
// neighbouring context survives retrieval on small chunks. Disabled when
// ContextWindowSize is zero.
func (c *Chunker) applyContextWindow(chunks []string) []string {
	if c.ContextWindowSize <= 0 || len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	out = append(out, chunks[0])
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tailStart := len(prev) - c.ContextWindowSize
		if tailStart < 0 {
			tailStart = 0
		}
		tail := strings.TrimSpace(string(prev[tailStart:]))
		current := strings.TrimSpace(chunks[i])
		if tail != "" {
			out = append(out, tail+"\n\n"+current)
		} else {
			out = append(out, current)
		}
	}
	return out
}

// splitSentences breaks on whitespace following terminal punctuation and on
// newline runs.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
				flush()
				for i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
					i++
				}
			}
		}
	}
	flush()
	return sentences
}

func cosineSimilarity(left, right []float32) float64 {
	if len(left) == 0 || len(right) == 0 || len(left) != len(right) {
		return 0
	}
	var dot, leftNorm, rightNorm float64
	for i := range left {
		dot += float64(left[i]) * float64(right[i])
		leftNorm += float64(left[i]) * float64(left[i])
		rightNorm += float64(right[i]) * float64(right[i])
	}
	if leftNorm == 0 || rightNorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(leftNorm) * math.Sqrt(rightNorm))
}
