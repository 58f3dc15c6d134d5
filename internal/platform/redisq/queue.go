package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

const (
	ingestQueueKey  = "raggae:jobs:ingest"
	reindexQueueKey = "raggae:jobs:reindex"
	progressChannel = "raggae:reindex:progress"
)

// IngestJob asks the worker to run the ingestion pipeline on one document.
type IngestJob struct {
	DocumentID uuid.UUID `json:"document_id"`
	ProjectID  uuid.UUID `json:"project_id"`
}

// ReindexJob asks the worker to reindex a whole project.
type ReindexJob struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// ReindexProgress is published after every document during a reindex so
// clients can render live progress.
type ReindexProgress struct {
	ProjectID uuid.UUID `json:"project_id"`
	Progress  int       `json:"progress"`
	Total     int       `json:"total"`
	Failed    int       `json:"failed"`
}

// Queue is a Redis list-backed job queue plus a pub/sub progress bus.
type Queue struct {
	rdb *goredis.Client
	log *logger.Logger
}

func New(addr string, log *logger.Logger) (*Queue, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Queue{rdb: rdb, log: log.With("service", "RedisQueue")}, nil
}

func (q *Queue) EnqueueIngest(ctx context.Context, job IngestJob) error {
	return q.push(ctx, ingestQueueKey, job)
}

func (q *Queue) EnqueueReindex(ctx context.Context, job ReindexJob) error {
	return q.push(ctx, reindexQueueKey, job)
}

// DequeueIngest blocks up to timeout for the next ingest job. Returns
// (nil, nil) on timeout.
func (q *Queue) DequeueIngest(ctx context.Context, timeout time.Duration) (*IngestJob, error) {
	var job IngestJob
	ok, err := q.pop(ctx, ingestQueueKey, timeout, &job)
	if err != nil || !ok {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) DequeueReindex(ctx context.Context, timeout time.Duration) (*ReindexJob, error) {
	var job ReindexJob
	ok, err := q.pop(ctx, reindexQueueKey, timeout, &job)
	if err != nil || !ok {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) PublishReindexProgress(ctx context.Context, p ReindexProgress) {
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := q.rdb.Publish(ctx, progressChannel, payload).Err(); err != nil {
		q.log.Warn("failed to publish reindex progress", "project_id", p.ProjectID, "error", err)
	}
}

func (q *Queue) push(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	return nil
}

func (q *Queue) pop(ctx context.Context, key string, timeout time.Duration, out interface{}) (bool, error) {
	res, err := q.rdb.BRPop(ctx, timeout, key).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dequeue %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), out); err != nil {
		return false, fmt.Errorf("decode job from %s: %w", key, err)
	}
	return true, nil
}

func (q *Queue) Close() error { return q.rdb.Close() }
