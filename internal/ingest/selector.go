package ingest

import (
	types "github.com/yungbote/raggae-backend/internal/domain"
)

// SelectStrategy maps structural signals to a concrete chunking strategy.
// Never returns auto or semantic.
func SelectStrategy(analysis StructureAnalysis) types.ChunkingStrategy {
	if analysis.HasHeadings {
		return types.ChunkingHeadingSection
	}
	if analysis.ParagraphCount >= 3 && analysis.AverageParagraphLength >= 40 {
		return types.ChunkingParagraph
	}
	if analysis.ParagraphCount >= 2 {
		return types.ChunkingParagraph
	}
	return types.ChunkingFixedWindow
}
