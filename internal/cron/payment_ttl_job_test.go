package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type fakeAttemptExpirer struct {
	counts []int
	calls  int
	limit  int
	err    error
}

func (f *fakeAttemptExpirer) ExpireStaleAttempts(_ context.Context, limit int) (int, error) {
	f.calls++
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	count := f.counts[0]
	f.counts = f.counts[1:]
	return count, nil
}

func TestPaymentTTLJobDrainsFullBatches(t *testing.T) {
	expirer := &fakeAttemptExpirer{counts: []int{5, 5, 2}}
	job, err := NewPaymentTTLJob(PaymentTTLJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Payments:  expirer,
		BatchSize: 5,
	})
	if err != nil {
		t.Fatalf("NewPaymentTTLJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 passes, got %d", expirer.calls)
	}
	if expirer.limit != 5 {
		t.Fatalf("expected batch size 5, got %d", expirer.limit)
	}
}

func TestPaymentTTLJobPropagatesError(t *testing.T) {
	expirer := &fakeAttemptExpirer{err: errors.New("boom")}
	job, err := NewPaymentTTLJob(PaymentTTLJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: expirer,
	})
	if err != nil {
		t.Fatalf("NewPaymentTTLJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPaymentTTLJobRequiresPayments(t *testing.T) {
	_, err := NewPaymentTTLJob(PaymentTTLJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err == nil {
		t.Fatal("expected constructor error")
	}
}
