package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	types "github.com/yungbote/raggae-backend/internal/domain"
)

func TestResolveChunkLimit(t *testing.T) {
	svc := &ChatService{cfg: app.Config{
		RetrievalDefaultChunkLimit: 8,
		RetrievalMaxChunkLimit:     40,
	}}

	if got := svc.resolveChunkLimit(5, types.RetrievalHybrid, "anything"); got != 5 {
		t.Errorf("explicit limit = %d, want 5", got)
	}
	if got := svc.resolveChunkLimit(999, types.RetrievalHybrid, "anything"); got != 40 {
		t.Errorf("over-max limit = %d, want clamp to 40", got)
	}
	if got := svc.resolveChunkLimit(0, types.RetrievalFulltext, "ERROR_CODE_42"); got != 6 {
		t.Errorf("fulltext default = %d, want 6", got)
	}
	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone"
	if got := svc.resolveChunkLimit(0, types.RetrievalHybrid, long); got != 12 {
		t.Errorf("long query limit = %d, want 12", got)
	}
	medium := "one two three four five six seven eight nine"
	if got := svc.resolveChunkLimit(0, types.RetrievalHybrid, medium); got != 10 {
		t.Errorf("medium query limit = %d, want 10", got)
	}
	if got := svc.resolveChunkLimit(0, types.RetrievalHybrid, "short question"); got != 8 {
		t.Errorf("short query limit = %d, want 8", got)
	}
}

func TestSelectUsefulChunksPrefersDocumentDiversity(t *testing.T) {
	docA, docB, docC := uuid.New(), uuid.New(), uuid.New()
	idx := func(i int) *int { return &i }
	chunks := []types.RetrievedChunk{
		{ChunkID: uuid.New(), DocumentID: docA, Score: 0.9, ChunkIndex: idx(0)},
		{ChunkID: uuid.New(), DocumentID: docA, Score: 0.8, ChunkIndex: idx(1)},
		{ChunkID: uuid.New(), DocumentID: docB, Score: 0.7, ChunkIndex: idx(0)},
		{ChunkID: uuid.New(), DocumentID: docC, Score: 0.6, ChunkIndex: idx(0)},
	}
	out := selectUsefulChunks(chunks, 3)
	if len(out) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(out))
	}
	docs := map[uuid.UUID]bool{}
	for _, c := range out {
		docs[c.DocumentID] = true
	}
	if len(docs) != 3 {
		t.Fatalf("expected one chunk per document, got %d documents", len(docs))
	}

	// Under the limit: pass through untouched.
	small := chunks[:2]
	if got := selectUsefulChunks(small, 5); len(got) != 2 {
		t.Fatalf("under-limit input should pass through, got %d", len(got))
	}
}

func TestSelectUsefulChunksFillsFromBest(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	idx := func(i int) *int { return &i }
	second := types.RetrievedChunk{ChunkID: uuid.New(), DocumentID: docA, Score: 0.8, ChunkIndex: idx(1)}
	chunks := []types.RetrievedChunk{
		{ChunkID: uuid.New(), DocumentID: docA, Score: 0.9, ChunkIndex: idx(0)},
		second,
		{ChunkID: uuid.New(), DocumentID: docB, Score: 0.5, ChunkIndex: idx(0)},
	}
	out := selectUsefulChunks(chunks, 3)
	found := false
	for _, c := range out {
		if c.ChunkID == second.ChunkID {
			found = true
		}
	}
	if !found {
		t.Fatal("fill phase should include the second chunk of the best document")
	}
}

func TestReliabilityPercent(t *testing.T) {
	idx := func(i int) *int { return &i }
	chunks := []types.RetrievedChunk{
		{ChunkID: uuid.New(), Score: 0.8, ChunkIndex: idx(0)},
		{ChunkID: uuid.New(), Score: 0.6, ChunkIndex: idx(1)},
	}
	if got := reliabilityPercent("A grounded answer.", chunks); got != 70 {
		t.Errorf("reliability = %d, want 70", got)
	}
	if got := reliabilityPercent("answer", nil); got != 0 {
		t.Errorf("no chunks should report 0, got %d", got)
	}
	if got := reliabilityPercent(NoContextMessage, chunks); got != 0 {
		t.Errorf("fallback answer should report 0, got %d", got)
	}
	over := []types.RetrievedChunk{{ChunkID: uuid.New(), Score: 1.7, ChunkIndex: idx(0)}}
	if got := reliabilityPercent("answer", over); got != 100 {
		t.Errorf("mean above 1 should clamp to 100, got %d", got)
	}
}

func TestSourceDocumentsAggregation(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	c1, c2, c3 := uuid.New(), uuid.New(), uuid.New()
	idx := func(i int) *int { return &i }
	chunks := []types.RetrievedChunk{
		{ChunkID: c1, DocumentID: docA, DocumentFileName: "a.pdf", ChunkIndex: idx(0)},
		{ChunkID: c2, DocumentID: docB, DocumentFileName: "b.md", ChunkIndex: idx(0)},
		{ChunkID: c3, DocumentID: docA, DocumentFileName: "a.pdf", ChunkIndex: idx(1)},
	}
	out := sourceDocuments(chunks)
	if len(out) != 2 {
		t.Fatalf("expected 2 source documents, got %d", len(out))
	}
	if out[0].DocumentID != docA || len(out[0].ChunkIDs) != 2 {
		t.Fatalf("first document should aggregate both chunks of a.pdf")
	}
	if out[1].FileName != "b.md" || len(out[1].ChunkIDs) != 1 {
		t.Fatalf("second document wrong: %+v", out[1])
	}
}
