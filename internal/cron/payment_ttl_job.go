package cron

import (
	"context"
	"fmt"

	"github.com/forkline-app/forkline-backend/pkg/logger"
)

const (
	paymentTTLBatchSize = 100
	paymentTTLMaxPasses = 50
)

type staleAttemptExpirer interface {
	ExpireStaleAttempts(ctx context.Context, limit int) (int, error)
}

// PaymentTTLJobParams configure the stale payment attempt sweeper.
type PaymentTTLJobParams struct {
	Logger    *logger.Logger
	Payments  staleAttemptExpirer
	BatchSize int
}

// NewPaymentTTLJob builds the job that cancels payment attempts stuck in an
// open state past the configured age.
func NewPaymentTTLJob(params PaymentTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = paymentTTLBatchSize
	}
	return &paymentTTLJob{
		logg:     params.Logger,
		payments: params.Payments,
		batch:    batch,
	}, nil
}

type paymentTTLJob struct {
	logg     *logger.Logger
	payments staleAttemptExpirer
	batch    int
}

func (j *paymentTTLJob) Name() string { return "payment-ttl" }

func (j *paymentTTLJob) Run(ctx context.Context) error {
	total := 0
	for pass := 0; pass < paymentTTLMaxPasses; pass++ {
		expired, err := j.payments.ExpireStaleAttempts(ctx, j.batch)
		if err != nil {
			return fmt.Errorf("expire stale payment attempts: %w", err)
		}
		total += expired
		if expired < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": total})
	j.logg.Info(logCtx, "stale payment attempt sweep complete")
	return nil
}
