package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gearledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

func newBoostOrder(payer, payee uuid.UUID) *models.Order {
	return &models.Order{
		Kind:       enums.OrderKindBoost,
		PayerID:    payer,
		PayeeID:    payee,
		GrossCents: 299,
		Currency:   "usd",
		Payload: types.OrderPayload{
			Boost: &types.BoostPayload{PartID: uuid.New(), DurationDays: 7},
		},
	}
}

func TestRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	order := newBoostOrder(uuid.New(), uuid.New())
	require.NoError(t, repo.Create(ctx, order))
	require.NotEqual(t, uuid.Nil, order.ID)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, found.Status)
	assert.Equal(t, 1, found.Version)
	require.NotNil(t, found.Payload.Boost)
	assert.Equal(t, 7, found.Payload.Boost.DurationDays)
	assert.Nil(t, found.ProviderSessionID)
}

func TestRepositoryAttachSessionOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	order := newBoostOrder(uuid.New(), uuid.New())
	require.NoError(t, repo.Create(ctx, order))

	ok, err := repo.AttachSession(ctx, order.ID, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AttachSession(ctx, order.ID, "cs_test_2")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindBySessionID(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindBySessionID(ctx, "cs_test_2")
	require.Error(t, err)
}

func TestRepositoryTransitionChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	order := newBoostOrder(uuid.New(), uuid.New())
	require.NoError(t, repo.Create(ctx, order))

	charge := "pi_123"
	ok, err := repo.Transition(ctx, TransitionInput{
		OrderID:         order.ID,
		ExpectedVersion: 1,
		From:            enums.OrderStatusPending,
		To:              enums.OrderStatusSucceeded,
		ChargeID:        &charge,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// stale writer loses
	ok, err = repo.Transition(ctx, TransitionInput{
		OrderID:         order.ID,
		ExpectedVersion: 1,
		From:            enums.OrderStatusPending,
		To:              enums.OrderStatusFailed,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusSucceeded, found.Status)
	assert.Equal(t, 2, found.Version)
	require.NotNil(t, found.ProviderChargeID)
	assert.Equal(t, charge, *found.ProviderChargeID)
	assert.NotNil(t, found.CompletedAt)
}

func TestRepositoryTransitionRejectsIllegalMove(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.Transition(context.Background(), TransitionInput{
		OrderID:         uuid.New(),
		ExpectedVersion: 1,
		From:            enums.OrderStatusSucceeded,
		To:              enums.OrderStatusCancelled,
	})
	require.Error(t, err)
}

func TestRepositoryListStalePending(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewRepository(db)

	stale := newBoostOrder(uuid.New(), uuid.New())
	require.NoError(t, repo.Create(ctx, stale))
	fresh := newBoostOrder(uuid.New(), uuid.New())
	require.NoError(t, repo.Create(ctx, fresh))

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", stale.ID).Update("created_at", old).Error)

	rows, err := repo.ListStalePending(ctx, time.Now().UTC().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
