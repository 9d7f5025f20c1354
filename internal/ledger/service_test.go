package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
	events   []models.LedgerEvent
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeRepository) Find(_ context.Context, filter Filter) ([]models.LedgerEvent, error) {
	var out []models.LedgerEvent
	for _, e := range f.events {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepository) Exists(ctx context.Context, filter Filter) (bool, error) {
	found, err := f.Find(ctx, filter)
	return len(found) > 0, err
}

func TestServiceRecordOrderEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	orderID := uuid.New()
	event, err := svc.Record(context.Background(), nil, RecordInput{
		OrderID:     &orderID,
		PayeeID:     uuid.New(),
		Type:        enums.LedgerEventTypeOrderPaid,
		AmountCents: 299,
		Metadata:    map[string]string{"charge_id": "pi_1"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if event.Currency != "usd" {
		t.Fatalf("expected default currency, got %q", event.Currency)
	}
	var meta map[string]string
	if err := json.Unmarshal(event.Metadata, &meta); err != nil || meta["charge_id"] != "pi_1" {
		t.Fatalf("unexpected metadata %s err=%v", event.Metadata, err)
	}

	has, err := svc.HasOrderEvent(context.Background(), orderID, enums.LedgerEventTypeOrderPaid)
	if err != nil || !has {
		t.Fatalf("expected order_paid event, has=%v err=%v", has, err)
	}
	has, err = svc.HasOrderEvent(context.Background(), orderID, enums.LedgerEventTypeOrderFailed)
	if err != nil || has {
		t.Fatalf("did not expect order_failed event, has=%v err=%v", has, err)
	}
}

func TestServiceRecordValidatesInput(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	orderID := uuid.New()

	cases := map[string]RecordInput{
		"missing subject": {PayeeID: uuid.New(), Type: enums.LedgerEventTypeOrderPaid},
		"missing payee":   {OrderID: &orderID, Type: enums.LedgerEventTypeOrderPaid},
		"bad type":        {OrderID: &orderID, PayeeID: uuid.New(), Type: "refund"},
		"negative":        {OrderID: &orderID, PayeeID: uuid.New(), Type: enums.LedgerEventTypeOrderPaid, AmountCents: -1},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Record(context.Background(), nil, input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestServiceRecordPropagatesRepoError(t *testing.T) {
	boom := errors.New("db down")
	svc, _ := NewService(&fakeRepository{createFn: func(context.Context, *models.LedgerEvent) error { return boom }})
	payoutID := uuid.New()
	_, err := svc.Record(context.Background(), nil, RecordInput{
		PayoutID: &payoutID,
		PayeeID:  uuid.New(),
		Type:     enums.LedgerEventTypePayoutRequested,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestServiceRecordJoinsTransaction(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := NewService(NewRepository(db))
	payoutID := uuid.New()

	rollback := errors.New("rollback")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Record(context.Background(), tx, RecordInput{
			PayoutID:    &payoutID,
			PayeeID:     uuid.New(),
			Type:        enums.LedgerEventTypePayoutRequested,
			AmountCents: 500,
		}); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	history, err := svc.PayoutHistory(context.Background(), payoutID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected rolled back event to be invisible, got %d", len(history))
	}
}

func TestRepositoryFiltersByTypeAndSubject(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := NewService(NewRepository(db))
	ctx := context.Background()
	orderID, otherOrder := uuid.New(), uuid.New()
	payee := uuid.New()

	for _, in := range []RecordInput{
		{OrderID: &orderID, PayeeID: payee, Type: enums.LedgerEventTypeOrderCancelled, AmountCents: 1000},
		{OrderID: &orderID, PayeeID: payee, Type: enums.LedgerEventTypeOrderPaid, AmountCents: 1000},
		{OrderID: &otherOrder, PayeeID: payee, Type: enums.LedgerEventTypeOrderFailed},
	} {
		if _, err := svc.Record(ctx, nil, in); err != nil {
			t.Fatalf("record %s: %v", in.Type, err)
		}
	}

	history, err := svc.History(ctx, orderID)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected two events for the order, got %d err=%v", len(history), err)
	}
	has, err := svc.HasOrderEvent(ctx, orderID, enums.LedgerEventTypeOrderFailed)
	if err != nil || has {
		t.Fatalf("order_failed belongs to another order, has=%v err=%v", has, err)
	}
	has, err = svc.HasOrderEvent(ctx, otherOrder, enums.LedgerEventTypeOrderFailed)
	if err != nil || !has {
		t.Fatalf("expected order_failed on the other order, has=%v err=%v", has, err)
	}

	none, err := NewRepository(db).Find(ctx, Filter{Type: enums.LedgerEventTypeOrderPaid})
	if err != nil || none != nil {
		t.Fatalf("a filter without a subject must match nothing, got %v err=%v", none, err)
	}
}
