package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
)

type fakeLock struct {
	acquired  bool
	releases  int
	extends   int
	extendErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.extends++
	return f.extendErr
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, lock, reg, success, failure)

	err := svc.RunOnce(context.Background())
	if err == nil || err.Error() != "fail: boom" {
		t.Fatalf("expected combined failure, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job once, got %d and %d", success.runs, failure.runs)
	}
	if !success.deadline {
		t.Fatalf("expected job context to carry a deadline")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
	if lock.extends != 1 {
		t.Fatalf("expected the lease renewed between jobs, got %d", lock.extends)
	}
	if got := counterValue(t, reg, "gearledger_cron_job_runs_total", "outcome", "failure"); got != 1 {
		t.Fatalf("expected one failure recorded, got %v", got)
	}
	if got := counterValue(t, reg, "gearledger_cron_cycles_total", "result", "ran"); got != 1 {
		t.Fatalf("expected one completed cycle, got %v", got)
	}
}

func TestRunOnceStopsWhenLeaseIsLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	lock := &fakeLock{extendErr: ErrLockLost}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, lock, reg, first, second)

	err := svc.RunOnce(context.Background())
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if first.runs != 1 || second.runs != 0 {
		t.Fatalf("expected only the first job to run, got %d and %d", first.runs, second.runs)
	}
	if got := counterValue(t, reg, "gearledger_cron_cycles_total", "result", "lease_lost"); got != 1 {
		t.Fatalf("expected lease loss recorded, got %v", got)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{acquired: true}, nil, job)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the first cycle to run, got %d", job.runs)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}
