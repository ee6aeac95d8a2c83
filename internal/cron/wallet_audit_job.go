package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

const walletAuditPageSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletAuditor interface {
	ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
	AuditBalance(ctx context.Context, walletID uuid.UUID) (*wallet.AuditResult, error)
}

// WalletAuditJobParams configure the ledger drift audit.
type WalletAuditJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Outbox   outboxEmitter
	Wallets  walletAuditor
	PageSize int
}

// NewWalletAuditJob builds the job that recomputes each wallet's ledger sum
// and flags any balance that disagrees with it. The audit only reports; repair
// stays a deliberate admin action.
func NewWalletAuditJob(params WalletAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = walletAuditPageSize
	}
	return &walletAuditJob{
		logg:     params.Logger,
		db:       params.DB,
		outbox:   params.Outbox,
		wallets:  params.Wallets,
		pageSize: pageSize,
		now:      time.Now,
	}, nil
}

type walletAuditJob struct {
	logg     *logger.Logger
	db       txRunner
	outbox   outboxEmitter
	wallets  walletAuditor
	pageSize int
	now      func() time.Time
}

func (j *walletAuditJob) Name() string { return "wallet-audit" }

func (j *walletAuditJob) Run(ctx context.Context) error {
	audited := 0
	drifted := 0
	var errs error
	for offset := 0; ; offset += j.pageSize {
		ids, err := j.wallets.ListWalletIDs(ctx, j.pageSize, offset)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list wallets: %w", err))
		}
		if len(ids) == 0 {
			break
		}
		// One bad wallet must not stop the sweep over the rest.
		for _, walletID := range ids {
			result, err := j.wallets.AuditBalance(ctx, walletID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("audit wallet %s: %w", walletID, err))
				continue
			}
			audited++
			if result.Drift.IsZero() {
				continue
			}
			drifted++
			if err := j.reportDrift(ctx, result); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if len(ids) < j.pageSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"audited": audited,
		"drifted": drifted,
	})
	if drifted > 0 {
		j.logg.Warn(logCtx, "wallet balance drift detected")
	} else {
		j.logg.Info(logCtx, "wallet balance audit complete")
	}
	return errs
}

func (j *walletAuditJob) reportDrift(ctx context.Context, result *wallet.AuditResult) error {
	detectedAt := j.now().UTC()
	// A wallet that keeps drifting produces one event, not one per run.
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletBalanceDriftFound,
			AggregateType: enums.AggregateWallet,
			AggregateID:   result.WalletID,
			Version:       1,
			OccurredAt:    detectedAt,
			Data: payloads.WalletBalanceDriftEvent{
				WalletID:      result.WalletID,
				StoredBalance: result.StoredBalance,
				LedgerBalance: result.LedgerBalance,
				Drift:         result.Drift,
				DetectedAt:    detectedAt,
			},
		})
	})
}
