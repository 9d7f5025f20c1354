package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
)

type fakeDLQAdmin struct {
	rows     []models.OutboxDLQ
	filter   outbox.DLQFilter
	replayed []uuid.UUID
}

func (f *fakeDLQAdmin) List(_ context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error) {
	f.filter = filter
	return f.rows, nil
}

func (f *fakeDLQAdmin) Replay(_ context.Context, eventID uuid.UUID) error {
	f.replayed = append(f.replayed, eventID)
	return nil
}

func TestRunDLQListPrintsPageAndCursor(t *testing.T) {
	msg := "topic deleted"
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeDLQAdmin{rows: []models.OutboxDLQ{
		{ID: uuid.New(), EventID: uuid.New(), EventType: enums.EventOrderSucceeded, ErrorReason: enums.OutboxDLQReasonNonRetryable, ErrorMessage: &msg, CreatedAt: now, FailedAt: now},
		{ID: uuid.New(), EventID: uuid.New(), EventType: enums.EventOrderFailed, ErrorReason: enums.OutboxDLQReasonNonRetryable, CreatedAt: now.Add(-time.Minute)},
	}}
	out := &bytes.Buffer{}

	err := runDLQ(context.Background(), []string{"list", "-reason", "non_retryable", "-limit", "1"}, store, out)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, store.filter.Reason)
	assert.Equal(t, 1, store.filter.Limit)
	assert.Contains(t, out.String(), store.rows[0].EventID.String())
	assert.Contains(t, out.String(), "topic deleted")
	assert.NotContains(t, out.String(), store.rows[1].EventID.String())
	assert.Contains(t, out.String(), "next cursor: ")
}

func TestRunDLQRejectsBadInput(t *testing.T) {
	store := &fakeDLQAdmin{}
	out := &bytes.Buffer{}
	assert.Error(t, runDLQ(context.Background(), nil, store, out))
	assert.Error(t, runDLQ(context.Background(), []string{"list", "-reason", "flaky"}, store, out))
	assert.Error(t, runDLQ(context.Background(), []string{"replay", "-event", "nope"}, store, out))
	assert.Error(t, runDLQ(context.Background(), []string{"purge"}, store, out))
	assert.Empty(t, store.replayed)
}

func TestRunDLQReplay(t *testing.T) {
	store := &fakeDLQAdmin{}
	id := uuid.New()
	out := &bytes.Buffer{}
	require.NoError(t, runDLQ(context.Background(), []string{"replay", "-event", id.String()}, store, out))
	assert.Equal(t, []uuid.UUID{id}, store.replayed)
	assert.Contains(t, out.String(), "requeued "+id.String())
}
