package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskIdempotencyCleanup is the task type for the idempotency key sweep.
const TaskIdempotencyCleanup = "ledger:idempotency-cleanup"

// DefaultIdempotencyRetention keeps processed keys for a week.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// IdempotencyCleanupPort removes processed keys older than the retention.
type IdempotencyCleanupPort interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleaner sweeps expired idempotency keys.
type IdempotencyCleaner struct {
	store     IdempotencyCleanupPort
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs IdempotencyCleaner.
func NewIdempotencyCleaner(store IdempotencyCleanupPort, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	if err := c.store.Cleanup(ctx, c.retention); err != nil {
		return err
	}
	c.logger.Info("idempotency cleanup", slog.Duration("retention", c.retention))
	return nil
}
