package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxErrorBackoff       = 10 * time.Second
	backoffJitter         = 250 * time.Millisecond

	messageSource = "gearledger"
)

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicProvider interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// RelayParams carries the relay's collaborators. PublisherFor defaults to the
// Pub/Sub client's cached publishers.
type RelayParams struct {
	Config       config.OutboxConfig
	Logger       *logger.Logger
	DB           database
	Topics       topicProvider
	Outbox       outboxStore
	DeadLetters  deadLetterStore
	Registry     eventResolver
	PublisherFor func(topic string) publisher
}

// Relay drains outbox_events into Pub/Sub. Each batch runs in one transaction
// holding row locks, so replicas never publish the same row twice in parallel.
type Relay struct {
	logg         *logger.Logger
	db           database
	topics       topicProvider
	outbox       outboxStore
	deadLetters  deadLetterStore
	registry     eventResolver
	publisherFor func(topic string) publisher

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

type delivery int

const (
	delivered delivery = iota
	retryLater
	deadLettered
)

type batchStats struct {
	published    int
	retried      int
	deadLettered int
}

func (b batchStats) total() int {
	return b.published + b.retried + b.deadLettered
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Topics == nil:
		return nil, errors.New("pubsub client is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	publisherFor := p.PublisherFor
	if publisherFor == nil {
		publisherFor = func(topic string) publisher {
			return wrapPublisher(p.Topics.Publisher(topic))
		}
	}

	r := &Relay{
		logg:         p.Logger,
		db:           p.DB,
		topics:       p.Topics,
		outbox:       p.Outbox,
		deadLetters:  p.DeadLetters,
		registry:     p.Registry,
		publisherFor: publisherFor,
		batchSize:    p.Config.BatchSize,
		maxAttempts:  p.Config.MaxAttempts,
		pollInterval: time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r, nil
}

// Run polls until ctx is cancelled. Full batches are followed immediately by
// another drain; batch errors back off exponentially up to maxErrorBackoff.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.topics.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	errBackoff := r.newErrorBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := r.drain(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox.drain_failed", err)
			wait, _ := errBackoff.Next()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		errBackoff = r.newErrorBackoff()

		if stats.total() > 0 {
			r.logg.Info(r.logg.WithFields(ctx, map[string]any{
				"published":     stats.published,
				"retried":       stats.retried,
				"dead_lettered": stats.deadLettered,
			}), "outbox.batch_drained")
		}
		if stats.total() >= r.batchSize {
			continue
		}
		if err := sleep(ctx, r.pollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay) newErrorBackoff() retry.Backoff {
	b := retry.NewExponential(r.pollInterval)
	b = retry.WithJitter(backoffJitter, b)
	return retry.WithCappedDuration(maxErrorBackoff, b)
}

func (r *Relay) drain(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			outcome, err := r.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			switch outcome {
			case delivered:
				stats.published++
			case retryLater:
				stats.retried++
			case deadLettered:
				stats.deadLettered++
			}
		}
		return nil
	})
	return stats, err
}

// deliver publishes one row and records its outcome inside tx. A returned
// error aborts the whole batch; publish failures are outcomes, not errors.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (delivery, error) {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	pubErr := r.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := r.outbox.MarkPublishedTx(tx, event.ID); err != nil {
			return delivered, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		return delivered, nil
	}

	if isPermanentPublishError(pubErr) {
		return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	attempt := event.NextAttempt()
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr)
		return deadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
	}

	logCtx := r.logg.WithFields(ctx, fields)
	r.logg.Warn(r.logg.WithField(logCtx, "error", pubErr.Error()), "outbox.publish_retry")
	if err := r.outbox.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return retryLater, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return retryLater, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := r.logg.WithFields(ctx, fields)
	r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox.dead_lettered")

	entry := event.DeadLetter(reason, cause, time.Now())
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, messageFor(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageFor carries the stored envelope as-is. Attributes let subscribers
// filter on order or payout ids without decoding the payload.
func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"source":         messageSource,
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// isPermanentPublishError reports failures a later attempt cannot fix: the
// registry's non-retryable marker or a gRPC status naming a bad request,
// missing topic or missing permission.
func isPermanentPublishError(err error) bool {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p: p}
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
