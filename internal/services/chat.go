package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/observability"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/providers"
)

// ChatRequest is one user turn. ConversationID nil starts a new conversation.
// ChunkLimit 0 lets the service pick a limit from the query shape.
type ChatRequest struct {
	ProjectID      uuid.UUID
	UserID         uuid.UUID
	ConversationID *uuid.UUID
	Message        string
	Strategy       string
	ChunkLimit     int
}

// ChatResult is the terminal payload of a turn, streamed as the final event
// and returned from the blocking call.
type ChatResult struct {
	ConversationID           uuid.UUID              `json:"conversation_id"`
	Answer                   string                 `json:"answer"`
	Chunks                   []types.RetrievedChunk `json:"chunks"`
	RetrievalStrategyUsed    string                 `json:"retrieval_strategy_used"`
	RetrievalExecutionTimeMS int64                  `json:"retrieval_execution_time_ms"`
	HistoryMessagesUsed      int                    `json:"history_messages_used"`
	ChunksUsed               int                    `json:"chunks_used"`
	ReliabilityPercent       int                    `json:"reliability_percent"`
	Cancelled                bool                   `json:"cancelled"`
}

// sourceDocument aggregates the grounding chunks of one document for the
// assistant message's source_documents column.
type sourceDocument struct {
	DocumentID uuid.UUID   `json:"document_id"`
	FileName   string      `json:"file_name"`
	ChunkIDs   []uuid.UUID `json:"chunk_ids"`
}

// Retriever is the slice of RetrievalService a chat turn needs.
type Retriever interface {
	Retrieve(dbc dbctx.Context, projectID uuid.UUID, queryText string, queryEmbedding []float32, opts RetrievalOptions) ([]types.RetrievedChunk, error)
	ExpandContextWindow(dbc dbctx.Context, chunks []types.RetrievedChunk, window int) ([]types.RetrievedChunk, error)
	SwapParents(dbc dbctx.Context, chunks []types.RetrievedChunk) ([]types.RetrievedChunk, error)
}

// Backends resolves provider clients for a project, see BackendResolver.
type Backends interface {
	ResolveEmbedder(dbc dbctx.Context, project *types.Project, userID uuid.UUID) *providers.ContextualEmbedder
	ResolveLLM(dbc dbctx.Context, project *types.Project, userID uuid.UUID) providers.LLM
	ResolveReranker(project *types.Project) providers.Reranker
}

// ChatService orchestrates a chat turn: access check, history assembly,
// retrieval, reranking, prompt building, generation and persistence. Turns in
// the same conversation serialize on a row lock.
type ChatService struct {
	db            *gorm.DB
	cfg           app.Config
	projects      repos.ProjectRepo
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	users         repos.UserRepo
	retrieval     Retriever
	backends      Backends
	titles        *TitleService
	security      *SecurityPolicy
	log           *logger.Logger
}

func NewChatService(
	db *gorm.DB,
	cfg app.Config,
	projects repos.ProjectRepo,
	conversations repos.ConversationRepo,
	messages repos.MessageRepo,
	users repos.UserRepo,
	retrieval Retriever,
	backends Backends,
	titles *TitleService,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		db:            db,
		cfg:           cfg,
		projects:      projects,
		conversations: conversations,
		messages:      messages,
		users:         users,
		retrieval:     retrieval,
		backends:      backends,
		titles:        titles,
		security:      NewSecurityPolicy(),
		log:           log.With("service", "ChatService"),
	}
}

// SendMessage runs one blocking turn.
func (s *ChatService) SendMessage(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	return s.run(ctx, req, nil)
}

// StreamMessage runs one turn, invoking onToken for every answer delta before
// returning the terminal result.
func (s *ChatService) StreamMessage(ctx context.Context, req ChatRequest, onToken func(string)) (*ChatResult, error) {
	return s.run(ctx, req, onToken)
}

func (s *ChatService) run(ctx context.Context, req ChatRequest, onToken func(string)) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, types.ErrInvalidArgument
	}

	dbc := dbctx.New(ctx)
	project, err := s.projects.GetByID(dbc, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(dbc, project, req.UserID); err != nil {
		return nil, err
	}

	var result *ChatResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.WithTx(ctx, tx)
		var terr error
		result, terr = s.runTurn(txc, project, req, onToken)
		return terr
	})
	if err != nil {
		return nil, err
	}

	// Name the conversation after its first exchange, off the request path.
	if result.HistoryMessagesUsed == 0 && !result.Cancelled {
		go func(convID uuid.UUID, question, answer string) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("title goroutine panicked", "error", r)
				}
			}()
			titleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			tdbc := dbctx.New(titleCtx)
			llm := s.backends.ResolveLLM(tdbc, project, req.UserID)
			s.titles.SetTitleIfUnset(tdbc, llm, convID, question, answer)
		}(result.ConversationID, req.Message, result.Answer)
	}
	return result, nil
}

func (s *ChatService) runTurn(dbc dbctx.Context, project *types.Project, req ChatRequest, onToken func(string)) (*ChatResult, error) {
	conv, created, err := s.resolveConversation(dbc, project, req)
	if err != nil {
		return nil, err
	}
	// Serialize concurrent turns on the same conversation.
	if !created {
		if conv, err = s.conversations.LockByID(dbc, conv.ID); err != nil {
			return nil, err
		}
	}

	history, err := s.loadHistory(dbc, conv.ID, project)
	if err != nil {
		return nil, err
	}

	if err := s.saveUserMessage(dbc, conv.ID, req.Message); err != nil {
		return nil, err
	}

	result := &ChatResult{ConversationID: conv.ID, HistoryMessagesUsed: len(history)}

	// Exfiltration attempts are refused before any retrieval or model call.
	if s.security.IsDisallowedUserMessage(req.Message) {
		result.Answer = RefusalMessage
		if onToken != nil {
			onToken(result.Answer)
		}
		if err := s.saveAssistantMessage(dbc, conv.ID, result, "", nil, false); err != nil {
			return nil, err
		}
		return result, s.conversations.Touch(dbc, conv.ID)
	}

	strategy := ResolveStrategy(s.requestedStrategy(project, req), req.Message)
	result.RetrievalStrategyUsed = string(strategy)
	chunkLimit := s.resolveChunkLimit(req.ChunkLimit, strategy, req.Message)

	embedder := s.backends.ResolveEmbedder(dbc, project, req.UserID)
	reranker := s.backends.ResolveReranker(project)

	queryEmbedding, err := s.embedQuery(dbc.Ctx, embedder, req.Message, strategy)
	if err != nil {
		return nil, err
	}

	retrieveLimit := chunkLimit
	if reranker != nil {
		retrieveLimit = chunkLimit * project.RerankerCandidateMultiplier
	}

	retrievalStart := time.Now()
	chunks, err := s.retrieval.Retrieve(dbc, project.ID, req.Message, queryEmbedding, RetrievalOptions{
		Strategy:            strategy,
		Limit:               retrieveLimit,
		MinScore:            project.RetrievalMinScore,
		CandidateMultiplier: s.cfg.RetrievalCandidateMultiplier,
		VectorWeight:        s.cfg.RetrievalVectorWeight,
		FulltextWeight:      s.cfg.RetrievalFulltextWeight,
		FusionMethod:        s.cfg.RetrievalFusionMethod,
	})
	if err != nil {
		return nil, err
	}
	chunks = s.rerank(dbc.Ctx, reranker, req.Message, chunks, chunkLimit)
	if chunks, err = s.retrieval.ExpandContextWindow(dbc, chunks, s.cfg.RetrievalContextWindowSize); err != nil {
		return nil, err
	}
	if chunks, err = s.retrieval.SwapParents(dbc, chunks); err != nil {
		return nil, err
	}
	chunks = selectUsefulChunks(filterRelevantChunks(chunks), chunkLimit)
	result.RetrievalExecutionTimeMS = time.Since(retrievalStart).Milliseconds()
	result.Chunks = chunks
	result.ChunksUsed = len(chunks)

	if len(chunks) == 0 {
		result.Answer = NoContextMessage
		if onToken != nil {
			onToken(result.Answer)
		}
		if err := s.saveAssistantMessage(dbc, conv.ID, result, "", nil, false); err != nil {
			return nil, err
		}
		return result, s.conversations.Touch(dbc, conv.ID)
	}

	prompt := s.buildPrompt(project, req.Message, history, chunks)
	llm := s.backends.ResolveLLM(dbc, project, req.UserID)

	answer, cancelled, genErr := s.generate(dbc.Ctx, llm, prompt, onToken)
	if genErr != nil && !cancelled {
		s.log.Warn("answer generation failed", "project_id", project.ID, "error", genErr)
		answer = LLMFailureMessage
		if onToken != nil {
			onToken(answer)
		}
	}
	answer = s.security.SanitizeModelAnswer(answer)
	result.Answer = answer
	result.Cancelled = cancelled
	result.ReliabilityPercent = reliabilityPercent(answer, chunks)

	// A cancelled turn still persists what was produced; use a detached
	// context so the write survives the caller's cancellation.
	persistDbc := dbc
	if cancelled {
		persistDbc = dbctx.WithTx(context.WithoutCancel(dbc.Ctx), dbc.Tx)
	}
	if err := s.saveAssistantMessage(persistDbc, conv.ID, result, prompt, sourceDocuments(chunks), cancelled); err != nil {
		return nil, err
	}
	return result, s.conversations.Touch(persistDbc, conv.ID)
}

// checkAccess admits the owner, members of the project's organization, and
// anyone on a published project.
func (s *ChatService) checkAccess(dbc dbctx.Context, project *types.Project, userID uuid.UUID) error {
	if project.UserID == userID || project.IsPublished {
		return nil
	}
	if project.OrganizationID != nil {
		orgIDs, err := s.users.OrgIDs(dbc, userID)
		if err != nil {
			return err
		}
		for _, id := range orgIDs {
			if id == *project.OrganizationID {
				return nil
			}
		}
	}
	return types.ErrAccessDenied
}

func (s *ChatService) resolveConversation(dbc dbctx.Context, project *types.Project, req ChatRequest) (*types.Conversation, bool, error) {
	if req.ConversationID != nil {
		conv, err := s.conversations.GetByID(dbc, *req.ConversationID)
		if err != nil {
			return nil, false, err
		}
		if conv.ProjectID != project.ID || conv.UserID != req.UserID {
			return nil, false, types.ErrAccessDenied
		}
		return conv, false, nil
	}
	conv, err := s.conversations.Create(dbc, &types.Conversation{
		ID:        uuid.New(),
		ProjectID: project.ID,
		UserID:    req.UserID,
		Title:     types.DefaultConversationTitle,
	})
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// loadHistory returns the last window of messages as "User: ..." /
// "Assistant: ..." lines, dropping oldest whole messages until the window
// fits the character budget.
func (s *ChatService) loadHistory(dbc dbctx.Context, conversationID uuid.UUID, project *types.Project) ([]string, error) {
	windowSize := project.ChatHistoryWindowSize
	if windowSize <= 0 {
		windowSize = s.cfg.ChatHistoryWindowSize
	}
	maxChars := project.ChatHistoryMaxChars
	if maxChars <= 0 {
		maxChars = s.cfg.ChatHistoryMaxChars
	}

	recent, err := s.messages.ListRecent(dbc, conversationID, windowSize)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(recent))
	total := 0
	for _, msg := range recent {
		var label string
		switch msg.Role {
		case types.RoleUser:
			label = "User: "
		case types.RoleAssistant:
			label = "Assistant: "
		default:
			continue
		}
		line := label + msg.Content
		lines = append(lines, line)
		total += len(line)
	}
	for len(lines) > 0 && total > maxChars {
		total -= len(lines[0])
		lines = lines[1:]
	}
	return lines, nil
}

// saveUserMessage skips the insert when the latest user message already holds
// the same content, so a client retry does not duplicate the turn.
func (s *ChatService) saveUserMessage(dbc dbctx.Context, conversationID uuid.UUID, content string) error {
	latest, err := s.messages.FindLatestByRole(dbc, conversationID, types.RoleUser)
	if err != nil {
		return err
	}
	if latest != nil && latest.Content == content {
		return nil
	}
	_, err = s.messages.Create(dbc, &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           types.RoleUser,
		Content:        content,
	})
	return err
}

func (s *ChatService) saveAssistantMessage(dbc dbctx.Context, conversationID uuid.UUID, result *ChatResult, prompt string, sources []sourceDocument, cancelled bool) error {
	reliability := result.ReliabilityPercent
	msg := &types.Message{
		ID:                 uuid.New(),
		ConversationID:     conversationID,
		Role:               types.RoleAssistant,
		Content:            result.Answer,
		LLMPrompt:          prompt,
		ReliabilityPercent: &reliability,
		Cancelled:          cancelled,
	}
	if len(sources) > 0 {
		raw, err := json.Marshal(sources)
		if err != nil {
			return err
		}
		msg.SourceDocuments = datatypes.JSON(raw)
	}
	_, err := s.messages.Create(dbc, msg)
	return err
}

func (s *ChatService) requestedStrategy(project *types.Project, req ChatRequest) string {
	if req.Strategy != "" {
		return req.Strategy
	}
	if project.RetrievalStrategy != "" {
		return string(project.RetrievalStrategy)
	}
	return s.cfg.RetrievalDefaultStrategy
}

// resolveChunkLimit picks how many chunks reach the prompt: an explicit
// request is clamped, otherwise full-text stays tight and longer questions
// get more room.
func (s *ChatService) resolveChunkLimit(requested int, strategy types.RetrievalStrategy, query string) int {
	maxLimit := s.cfg.RetrievalMaxChunkLimit
	if maxLimit <= 0 {
		maxLimit = types.MaxRetrievalTopK
	}
	if requested > 0 {
		if requested > maxLimit {
			return maxLimit
		}
		return requested
	}
	if strategy == types.RetrievalFulltext {
		return 6
	}
	words := len(strings.Fields(query))
	switch {
	case words > 20:
		return 12
	case words > 8:
		return 10
	default:
		if s.cfg.RetrievalDefaultChunkLimit > 0 {
			return s.cfg.RetrievalDefaultChunkLimit
		}
		return types.DefaultRetrievalTopK
	}
}

// embedQuery is skipped for pure full-text turns.
func (s *ChatService) embedQuery(ctx context.Context, embedder *providers.ContextualEmbedder, query string, strategy types.RetrievalStrategy) ([]float32, error) {
	if strategy == types.RetrievalFulltext {
		return nil, nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingRequestTimeout)
	defer cancel()
	return embedder.EmbedQuery(embedCtx, query)
}

func (s *ChatService) rerank(ctx context.Context, reranker providers.Reranker, query string, chunks []types.RetrievedChunk, topK int) []types.RetrievedChunk {
	if reranker == nil || len(chunks) == 0 {
		if len(chunks) > topK {
			return chunks[:topK]
		}
		return chunks
	}
	rerankCtx, cancel := context.WithTimeout(ctx, s.cfg.RerankerRequestTimeout)
	defer cancel()
	rerankCtx, span := observability.StartSpan(rerankCtx, "rerank",
		attribute.Int("rerank.candidates", len(chunks)),
		attribute.Int("rerank.top_k", topK),
	)
	reranked, err := reranker.Rerank(rerankCtx, query, chunks, topK)
	observability.EndSpan(span, err)
	if err != nil {
		s.log.Warn("reranking failed, keeping retrieval order", "error", err)
		if len(chunks) > topK {
			return chunks[:topK]
		}
		return chunks
	}
	return reranked
}

func (s *ChatService) buildPrompt(project *types.Project, query string, history []string, chunks []types.RetrievedChunk) string {
	in := PromptInput{
		Query:               query,
		ProjectSystemPrompt: project.SystemPrompt,
		ConversationHistory: history,
	}
	hasSources := false
	for _, c := range chunks {
		in.ContextChunks = append(in.ContextChunks, c.Content)
		in.SourceFileNames = append(in.SourceFileNames, c.DocumentFileName)
		in.RelevanceScores = append(in.RelevanceScores, c.Score)
		if c.DocumentFileName != "" {
			hasSources = true
		}
	}
	if hasSources {
		return BuildEnhancedPrompt(in)
	}
	return BuildPrompt(in)
}

// generate runs the model under the configured timeout. A context
// cancellation from the caller returns the partial answer with cancelled set.
func (s *ChatService) generate(ctx context.Context, llm providers.LLM, prompt string, onToken func(string)) (string, bool, error) {
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMRequestTimeout)
	defer cancel()
	llmCtx, span := observability.StartSpan(llmCtx, "llm.generate",
		attribute.Int("llm.prompt_chars", len(prompt)),
		attribute.Bool("llm.streaming", onToken != nil),
	)

	if onToken == nil {
		answer, err := llm.Generate(llmCtx, prompt)
		observability.EndSpan(span, err)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return answer, true, err
		}
		return answer, false, err
	}

	var b strings.Builder
	answer, err := llm.Stream(llmCtx, prompt, func(delta string) {
		b.WriteString(delta)
		onToken(delta)
	})
	observability.EndSpan(span, err)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return b.String(), true, err
		}
		return answer, false, err
	}
	if answer == "" {
		answer = b.String()
	}
	return answer, false, nil
}

// filterRelevantChunks drops zero-score rows (context-window neighbors) and
// blank content before selection; only actual hits reach the prompt.
func filterRelevantChunks(chunks []types.RetrievedChunk) []types.RetrievedChunk {
	out := make([]types.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score > 0 && strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out
}

// selectUsefulChunks keeps at most limit chunks, preferring document
// diversity: one chunk per document first, then the remaining best scores.
func selectUsefulChunks(chunks []types.RetrievedChunk, limit int) []types.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	selected := make([]types.RetrievedChunk, 0, limit)
	used := map[uuid.UUID]bool{}
	seenDoc := map[uuid.UUID]bool{}
	for _, c := range chunks {
		if len(selected) == limit {
			break
		}
		if !seenDoc[c.DocumentID] {
			seenDoc[c.DocumentID] = true
			used[c.ChunkID] = true
			selected = append(selected, c)
		}
	}
	for _, c := range chunks {
		if len(selected) == limit {
			break
		}
		if !used[c.ChunkID] {
			used[c.ChunkID] = true
			selected = append(selected, c)
		}
	}
	SortRetrieved(selected)
	return selected
}

// reliabilityPercent is the clamped mean retrieval score as a percentage.
// Canonical fallback answers always report zero.
func reliabilityPercent(answer string, chunks []types.RetrievedChunk) int {
	if isCanonicalFallback(answer) || len(chunks) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range chunks {
		sum += c.Score
	}
	mean := sum / float64(len(chunks))
	if mean < 0 {
		mean = 0
	}
	if mean > 1 {
		mean = 1
	}
	return int(math.Round(mean * 100))
}

func sourceDocuments(chunks []types.RetrievedChunk) []sourceDocument {
	order := make([]uuid.UUID, 0)
	byDoc := map[uuid.UUID]*sourceDocument{}
	for _, c := range chunks {
		doc, ok := byDoc[c.DocumentID]
		if !ok {
			doc = &sourceDocument{DocumentID: c.DocumentID, FileName: c.DocumentFileName}
			byDoc[c.DocumentID] = doc
			order = append(order, c.DocumentID)
		}
		doc.ChunkIDs = append(doc.ChunkIDs, c.ChunkID)
	}
	out := make([]sourceDocument, 0, len(order))
	for _, id := range order {
		out = append(out, *byDoc[id])
	}
	return out
}
