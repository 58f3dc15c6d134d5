package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/app"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/workerpool"
	"github.com/yungbote/raggae-backend/internal/providers"
)

// BackendResolver turns a project's declared backends into concrete provider
// clients, pre-wired with the key from the credential chain. Unknown or empty
// backends fall back to the in-memory implementations so a zero-config
// deployment still answers.
type BackendResolver struct {
	cfg         app.Config
	credentials *CredentialService
	pool        *workerpool.Pool
	log         *logger.Logger
}

func NewBackendResolver(cfg app.Config, credentials *CredentialService, pool *workerpool.Pool, log *logger.Logger) *BackendResolver {
	return &BackendResolver{
		cfg:         cfg,
		credentials: credentials,
		pool:        pool,
		log:         log.With("service", "BackendResolver"),
	}
}

// ResolveEmbedder picks the project's embedding backend, wrapped in the
// contextual prefixer so documents and queries embed with distinct prefixes.
func (r *BackendResolver) ResolveEmbedder(dbc dbctx.Context, project *types.Project, userID uuid.UUID) *providers.ContextualEmbedder {
	backend := project.EmbeddingBackend
	if backend == "" {
		backend = r.cfg.DefaultEmbeddingProvider
	}
	model := project.EmbeddingModel
	dim := r.cfg.EmbeddingDimension

	var base providers.Embedder
	switch strings.ToLower(backend) {
	case "openai":
		if model == "" {
			model = r.cfg.DefaultEmbeddingModel
		}
		key := r.credentials.ResolveKey(dbc, project, userID, types.ProviderOpenAI)
		base = providers.NewOpenAIEmbedder(key, model, dim, r.cfg.EmbeddingRequestTimeout, r.log)
	case "gemini":
		if model == "" {
			model = r.cfg.DefaultEmbeddingModel
		}
		key := r.credentials.ResolveKey(dbc, project, userID, types.ProviderGemini)
		base = providers.NewGeminiEmbedder(key, model, dim, r.cfg.EmbeddingRequestTimeout, r.log)
	case "ollama":
		if model == "" {
			model = r.cfg.OllamaEmbedModel
		}
		base = providers.NewOllamaEmbedder(r.cfg.OllamaBaseURL, model, dim, r.cfg.EmbeddingRequestTimeout, r.log)
	default:
		base = providers.NewInMemoryEmbedder(dim)
	}
	return providers.NewContextualEmbedder(base)
}

// ResolveLLM picks the project's chat backend.
func (r *BackendResolver) ResolveLLM(dbc dbctx.Context, project *types.Project, userID uuid.UUID) providers.LLM {
	backend := project.LLMBackend
	if backend == "" {
		backend = r.cfg.DefaultLLMProvider
	}
	model := project.LLMModel
	if model == "" {
		model = r.cfg.DefaultLLMModel
	}

	switch strings.ToLower(backend) {
	case "openai":
		key := r.credentials.ResolveKey(dbc, project, userID, types.ProviderOpenAI)
		return providers.NewOpenAILLM(key, model, r.cfg.LLMRequestTimeout, r.log)
	case "gemini":
		key := r.credentials.ResolveKey(dbc, project, userID, types.ProviderGemini)
		return providers.NewGeminiLLM(key, model, r.cfg.LLMRequestTimeout, r.log)
	case "anthropic":
		key := r.credentials.ResolveKey(dbc, project, userID, types.ProviderAnthropic)
		return providers.NewAnthropicLLM(key, model, r.cfg.LLMRequestTimeout, r.log)
	case "ollama":
		if project.LLMModel == "" {
			model = r.cfg.OllamaLLMModel
		}
		return providers.NewOllamaLLM(r.cfg.OllamaBaseURL, model, "10m", r.cfg.LLMRequestTimeout, r.log)
	default:
		return providers.NewInMemoryLLM()
	}
}

// ResolveReranker returns nil when reranking is disabled or the backend is
// "none"; callers treat nil as pass-through.
func (r *BackendResolver) ResolveReranker(project *types.Project) providers.Reranker {
	if !project.RerankingEnabled {
		return nil
	}
	backend := project.RerankerBackend
	if backend == "" {
		backend = r.cfg.RerankerBackend
	}
	model := project.RerankerModel
	if model == "" {
		model = r.cfg.RerankerModel
	}

	switch strings.ToLower(backend) {
	case "none", "":
		return nil
	case "cross_encoder":
		if r.cfg.RerankerInferenceURL == "" {
			r.log.Warn("cross_encoder reranker requested without inference url; disabling", "project_id", project.ID)
			return nil
		}
		return providers.NewCrossEncoderReranker(r.cfg.RerankerInferenceURL, model, r.cfg.RerankerRequestTimeout, r.pool, r.log)
	case "mmr":
		return providers.NewMMRReranker(providers.DefaultMMRLambda)
	case "inmemory":
		return providers.NewInMemoryReranker()
	default:
		return nil
	}
}
