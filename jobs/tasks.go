package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/moneymint/moneymint/internal/jobs"
	"github.com/moneymint/moneymint/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
	// TaskCollectionsWarmup pre-warms daily collection summaries.
	TaskCollectionsWarmup = "ledger:collections_warmup"
)

// IdempotencyCleanupPayload configures the cleanup window.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"olderThanHours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThanHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThanHours: olderThanHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// IdempotencyCleaner removes stale idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	store   IdempotencyCleaner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes one cleanup run.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("idempotency_cleanup")
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	olderThan := time.Duration(payload.OlderThanHours) * time.Hour
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}
	removed, err := j.store.Cleanup(ctx, olderThan)
	if err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("idempotency cleanup", slog.Int64("removed", removed))
	return tracker.End(nil)
}

// CollectionsWarmupPayload selects which day to warm.
type CollectionsWarmupPayload struct {
	// Date in YYYY-MM-DD; empty warms today.
	Date string `json:"date"`
}

// NewCollectionsWarmupTask constructs the warmup task.
func NewCollectionsWarmupTask(date string) (*asynq.Task, error) {
	data, err := json.Marshal(CollectionsWarmupPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCollectionsWarmup, data), nil
}

// CollectionsSummariser loads (and thereby caches) a daily summary.
type CollectionsSummariser interface {
	DailyCollections(ctx context.Context, ownerID string, date time.Time) (ledger.DailyCollections, error)
}

// CollectionsWarmupJob handles TaskCollectionsWarmup. It walks every owner
// with customers and loads their summary so the first dashboard request of
// the day hits a warm cache.
type CollectionsWarmupJob struct {
	pool      *pgxpool.Pool
	summaries CollectionsSummariser
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewCollectionsWarmupJob constructs the job.
func NewCollectionsWarmupJob(pool *pgxpool.Pool, summaries CollectionsSummariser, logger *slog.Logger, metrics *jobmetrics.Metrics) *CollectionsWarmupJob {
	return &CollectionsWarmupJob{pool: pool, summaries: summaries, logger: logger, metrics: metrics}
}

// Handle processes one warmup run.
func (j *CollectionsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("collections_warmup")
	var payload CollectionsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	date := time.Now()
	if payload.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", payload.Date, time.Local)
		if err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		date = parsed
	}

	owners, err := j.listOwners(ctx)
	if err != nil {
		j.logger.Error("collections warmup: list owners", slog.Any("error", err))
		return tracker.End(err)
	}
	warmed := 0
	for _, ownerID := range owners {
		if _, err := j.summaries.DailyCollections(ctx, ownerID, date); err != nil {
			j.logger.Warn("collections warmup", slog.String("owner_id", ownerID), slog.Any("error", err))
			continue
		}
		warmed++
	}
	j.logger.Info("collections warmup", slog.Int("owners", len(owners)), slog.Int("warmed", warmed))
	return tracker.End(nil)
}

func (j *CollectionsWarmupJob) listOwners(ctx context.Context) ([]string, error) {
	rows, err := j.pool.Query(ctx, `SELECT DISTINCT owner_id FROM customers`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list owners: %w", err)
	}
	defer rows.Close()
	owners := []string{}
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			return nil, fmt.Errorf("jobs: scan owner: %w", err)
		}
		owners = append(owners, ownerID)
	}
	return owners, rows.Err()
}
