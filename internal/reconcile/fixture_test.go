package reconcile

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/internal/fees"
	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/ledger"
	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	dbpkg "github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	orders   orders.Repository
	invoices invoices.Repository
	ledger   ledger.Service
	outbox   *outbox.Repository
	gateway  *provider.Fake
}

func newFixture(t *testing.T, mutate ...func(*ServiceParams)) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "reconcile-test", Output: io.Discard})
	outboxRepo := outbox.NewRepository(db)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		orders:   orders.NewRepository(db),
		invoices: invoices.NewRepository(db),
		ledger:   ledgerSvc,
		outbox:   outboxRepo,
		gateway:  provider.NewFake(),
	}
	params := ServiceParams{
		Orders:            f.orders,
		Invoices:          f.invoices,
		Ledger:            ledgerSvc,
		Outbox:            outbox.NewService(outboxRepo, logg),
		Rates:             fees.NewRateBook(),
		Gateway:           f.gateway,
		TransactionRunner: dbpkg.FromConn(db),
		Logger:            logg,
		ExpireOnCancel:    true,
	}
	for _, m := range mutate {
		m(&params)
	}
	f.svc, err = NewService(params)
	require.NoError(t, err)
	return f
}

func (f *fixture) seedOrder(t *testing.T, kind enums.OrderKind, gross int64, sessionID string) *models.Order {
	t.Helper()
	order := &models.Order{
		Kind:       kind,
		PayerID:    uuid.New(),
		PayeeID:    uuid.New(),
		GrossCents: gross,
		Currency:   "usd",
	}
	switch kind {
	case enums.OrderKindBoost:
		order.Payload.Boost = &types.BoostPayload{PartID: uuid.New(), DurationDays: 7}
	case enums.OrderKindPartPurchase:
		order.Payload.PartPurchase = &types.PartPurchasePayload{
			PartID: uuid.New(),
			ShippingAddress: types.ShippingAddress{
				Name: "Sam Driver", Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US",
			},
		}
	case enums.OrderKindServicePayment:
		order.Payload.ServicePayment = &types.ServicePaymentPayload{MechanicID: uuid.New(), ServiceType: "diagnostics", DurationMinutes: 60}
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	if sessionID != "" {
		ok, err := f.orders.AttachSession(context.Background(), order.ID, sessionID)
		require.NoError(t, err)
		require.True(t, ok)
		order.ProviderSessionID = &sessionID
	}
	return order
}

func (f *fixture) seedSession(t *testing.T, order *models.Order) provider.CheckoutSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.gateway.CreateCheckoutSession(ctx, provider.CheckoutSessionRequest{
		AmountCents: order.GrossCents,
		Metadata:    map[string]string{provider.MetadataOrderID: order.ID.String()},
	})
	require.NoError(t, err)
	_, err = f.orders.AttachSession(ctx, order.ID, session.ID)
	require.NoError(t, err)
	return session
}

func (f *fixture) invoiceCount(t *testing.T, orderID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Invoice{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func (f *fixture) eventTypes(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.outbox.ListByAggregate(nil, aggregateID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}
