package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type fakeQuoteExpirer struct {
	counts []int
	calls  int
	err    error
}

func (f *fakeQuoteExpirer) ExpireStaleQuotes(_ context.Context, limit int) (int, error) {
	f.calls++
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

func TestQuoteExpiryJobStopsOnShortBatch(t *testing.T) {
	expirer := &fakeQuoteExpirer{counts: []int{3}}
	job, err := NewQuoteExpiryJob(QuoteExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Delivery:  expirer,
		BatchSize: 10,
	})
	if err != nil {
		t.Fatalf("NewQuoteExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected a single pass, got %d", expirer.calls)
	}
}

func TestQuoteExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeQuoteExpirer{err: errors.New("boom")}
	job, err := NewQuoteExpiryJob(QuoteExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Delivery: expirer,
	})
	if err != nil {
		t.Fatalf("NewQuoteExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
