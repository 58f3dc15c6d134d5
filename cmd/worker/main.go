package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/raggae-backend/internal/app"
	"github.com/yungbote/raggae-backend/internal/data/db"
	"github.com/yungbote/raggae-backend/internal/data/repos"
	"github.com/yungbote/raggae-backend/internal/observability"
	"github.com/yungbote/raggae-backend/internal/platform/crypto"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/platform/redisq"
	"github.com/yungbote/raggae-backend/internal/platform/storage"
	"github.com/yungbote/raggae-backend/internal/platform/workerpool"
	"github.com/yungbote/raggae-backend/internal/services"
)

const dequeueTimeout = 5 * time.Second

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading configuration from main...")
	cfg := app.LoadConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "raggae-worker",
		Environment: logMode,
		Version:     os.Getenv("SERVICE_VERSION"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn("OTel shutdown failed", "error", err)
		}
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(cfg.EmbeddingDimension); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Blob storage
	var files storage.FileStorage
	switch cfg.StorageBackend {
	case "minio":
		files, err = storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3EndpointURL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3BucketName,
			Region:    cfg.S3Region,
			Secure:    cfg.S3Secure,
		}, log)
		if err != nil {
			log.Fatal("MinIO init failed", "error", err)
		}
	default:
		log.Warn("Using in-memory blob storage; uploads do not survive restarts")
		files = storage.NewInMemoryStorage()
	}

	// Job queue
	queue, err := redisq.New(cfg.RedisAddr, log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	defer queue.Close()

	// Worker pool for blocking inference offloads
	pool, err := workerpool.New(cfg.WorkerPoolSize)
	if err != nil {
		log.Fatal("Worker pool init failed", "error", err)
	}
	defer pool.Release()

	// Key cipher
	cipher, err := crypto.NewKeyCipher(cfg.CredentialsEncryptionKey)
	if err != nil {
		log.Fatal("Credentials cipher init failed", "error", err)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	projectRepo := repos.NewProjectRepo(thePG, log)
	documentRepo := repos.NewDocumentRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	userCredentialRepo := repos.NewUserCredentialRepo(thePG, log)
	orgCredentialRepo := repos.NewOrgCredentialRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	credentialService := services.NewCredentialService(userCredentialRepo, orgCredentialRepo, userRepo, cipher, cfg.GlobalAPIKeys, log)
	backendResolver := services.NewBackendResolver(cfg, credentialService, pool, log)
	indexingService := services.NewIndexingService(cfg, documentRepo, chunkRepo, projectRepo, files, backendResolver, log)
	reindexService := services.NewReindexService(thePG, projectRepo, documentRepo, indexingService, queue, log)

	log.Info("Worker ready, consuming jobs...")
	go consumeIngest(ctx, log, queue, indexingService)
	go consumeReindex(ctx, log, queue, reindexService)

	<-ctx.Done()
	log.Info("Shutdown signal received, draining...")
}

func consumeIngest(ctx context.Context, log *logger.Logger, queue *redisq.Queue, indexing *services.IndexingService) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := queue.DequeueIngest(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Ingest dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		if err := indexing.IndexDocument(dbctx.New(ctx), job.DocumentID); err != nil {
			log.Warn("Ingest job failed", "document_id", job.DocumentID, "error", err)
		}
	}
}

func consumeReindex(ctx context.Context, log *logger.Logger, queue *redisq.Queue, reindex *services.ReindexService) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := queue.DequeueReindex(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Reindex dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		result, err := reindex.ReindexProject(dbctx.New(ctx), job.ProjectID)
		if err != nil {
			log.Warn("Reindex job failed", "project_id", job.ProjectID, "error", err)
			continue
		}
		log.Info("Reindex job done", "project_id", result.ProjectID, "total", result.Total, "indexed", result.Indexed, "failed", result.Failed)
	}
}
