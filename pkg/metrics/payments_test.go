package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObserveReconcile("succeeded", "applied")
	m.ObserveReconcile("succeeded", "already_reconciled")
	m.ObserveReconcile("succeeded", "already_reconciled")
	m.ObservePayout("in_transit")
	m.ObserveWebhook("checkout.session.completed", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "gearledger_reconcile_total", "result", "already_reconciled"); err != nil {
		t.Fatalf("fetch reconcile: %v", err)
	} else if got != 2 {
		t.Fatalf("expected already_reconciled=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "gearledger_payouts_total", "status", "in_transit"); err != nil {
		t.Fatalf("fetch payouts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected in_transit=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "gearledger_webhook_events_total", "type", "checkout.session.completed"); err != nil {
		t.Fatalf("fetch webhooks: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook=1, got %f", got)
	}
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.ObserveReconcile("failed", "applied")
	m.ObservePayout("failed")

	noop := NewPaymentMetrics(nil)
	noop.ObserveWebhook("transfer.created", "ok")
}
