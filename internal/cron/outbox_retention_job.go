package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDeadAttempts    = 5
	defaultPurgeBatch      = 500
)

type outboxPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time, deadAttempts, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. DeadAttempts must
// match the relay's max attempts so only dead-lettered rows qualify.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   outboxPurger
	Retention    time.Duration
	DeadAttempts int
	BatchSize    int
}

// NewOutboxRetentionJob purges delivered and dead-lettered outbox rows older
// than the retention window, one bounded batch at a time.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		retention:    orDefault(params.Retention, defaultOutboxRetention),
		deadAttempts: orDefault(params.DeadAttempts, defaultDeadAttempts),
		batch:        orDefault(params.BatchSize, defaultPurgeBatch),
		now:          time.Now,
	}
	return job, nil
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxPurger
	retention    time.Duration
	deadAttempts int
	batch        int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	passes := 0
	for {
		deleted, err := j.repo.PurgeBefore(ctx, cutoff, j.deadAttempts, j.batch)
		total += deleted
		passes++
		if err != nil {
			return fmt.Errorf("purge outbox after %d rows: %w", total, err)
		}
		if deleted < int64(j.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"passes":       passes,
	}), "outbox retention cleanup complete")
	return nil
}
