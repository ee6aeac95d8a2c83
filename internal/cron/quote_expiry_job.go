package cron

import (
	"context"
	"fmt"

	"github.com/forkline-app/forkline-backend/pkg/logger"
)

const (
	quoteExpiryBatchSize = 200
	quoteExpiryMaxPasses = 50
)

type staleQuoteExpirer interface {
	ExpireStaleQuotes(ctx context.Context, limit int) (int, error)
}

// QuoteExpiryJobParams configure the delivery quote expiry sweeper.
type QuoteExpiryJobParams struct {
	Logger    *logger.Logger
	Delivery  staleQuoteExpirer
	BatchSize int
}

// NewQuoteExpiryJob builds the job that marks delivery quotes expired once
// their validity window has passed.
func NewQuoteExpiryJob(params QuoteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = quoteExpiryBatchSize
	}
	return &quoteExpiryJob{
		logg:     params.Logger,
		delivery: params.Delivery,
		batch:    batch,
	}, nil
}

type quoteExpiryJob struct {
	logg     *logger.Logger
	delivery staleQuoteExpirer
	batch    int
}

func (j *quoteExpiryJob) Name() string { return "quote-expiry" }

func (j *quoteExpiryJob) Run(ctx context.Context) error {
	total := 0
	for pass := 0; pass < quoteExpiryMaxPasses; pass++ {
		expired, err := j.delivery.ExpireStaleQuotes(ctx, j.batch)
		if err != nil {
			return fmt.Errorf("expire stale delivery quotes: %w", err)
		}
		total += expired
		if expired < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": total})
	j.logg.Info(logCtx, "delivery quote expiry sweep complete")
	return nil
}
