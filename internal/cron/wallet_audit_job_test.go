package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

type fakeWalletAuditor struct {
	ids    []uuid.UUID
	drifts map[uuid.UUID]decimal.Decimal
	errs   map[uuid.UUID]error
}

func (f *fakeWalletAuditor) ListWalletIDs(_ context.Context, limit, offset int) ([]uuid.UUID, error) {
	if offset >= len(f.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[offset:end], nil
}

func (f *fakeWalletAuditor) AuditBalance(_ context.Context, walletID uuid.UUID) (*wallet.AuditResult, error) {
	if err := f.errs[walletID]; err != nil {
		return nil, err
	}
	drift := f.drifts[walletID]
	return &wallet.AuditResult{
		WalletID:      walletID,
		StoredBalance: decimal.NewFromInt(1000).Add(drift),
		LedgerBalance: decimal.NewFromInt(1000),
		Drift:         drift,
	}, nil
}

type fakeAuditEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeAuditEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditEmitter) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range f.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	f.events = append(f.events, event)
	return nil
}

type walletAuditTxRunner struct{}

func (walletAuditTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestWalletAuditJobFlagsDriftedWallets(t *testing.T) {
	clean := uuid.New()
	drifted := uuid.New()
	auditor := &fakeWalletAuditor{
		ids: []uuid.UUID{clean, drifted},
		drifts: map[uuid.UUID]decimal.Decimal{
			drifted: decimal.NewFromInt(250),
		},
	}
	emitter := &fakeAuditEmitter{}
	job := newWalletAuditJob(t, auditor, emitter)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected one drift event, got %d", len(emitter.events))
	}
	event := emitter.events[0]
	if event.EventType != enums.EventWalletBalanceDriftFound {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	if event.AggregateID != drifted {
		t.Fatalf("expected drifted wallet %s, got %s", drifted, event.AggregateID)
	}
}

func TestWalletAuditJobRepeatRunEmitsOnce(t *testing.T) {
	drifted := uuid.New()
	auditor := &fakeWalletAuditor{
		ids: []uuid.UUID{drifted},
		drifts: map[uuid.UUID]decimal.Decimal{
			drifted: decimal.NewFromInt(-75),
		},
	}
	emitter := &fakeAuditEmitter{}
	job := newWalletAuditJob(t, auditor, emitter)

	for i := 0; i < 3; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected a single drift event across runs, got %d", len(emitter.events))
	}
}

func TestWalletAuditJobPagesThroughWallets(t *testing.T) {
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
	}
	auditor := &fakeWalletAuditor{ids: ids}
	emitter := &fakeAuditEmitter{}
	jobIface, err := NewWalletAuditJob(WalletAuditJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		DB:       walletAuditTxRunner{},
		Outbox:   emitter,
		Wallets:  auditor,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("NewWalletAuditJob: %v", err)
	}

	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("expected no drift events for clean wallets, got %d", len(emitter.events))
	}
}

func TestWalletAuditJobContinuesPastAuditErrors(t *testing.T) {
	broken := uuid.New()
	drifted := uuid.New()
	auditor := &fakeWalletAuditor{
		ids: []uuid.UUID{broken, drifted},
		drifts: map[uuid.UUID]decimal.Decimal{
			drifted: decimal.NewFromInt(40),
		},
		errs: map[uuid.UUID]error{
			broken: errors.New("ledger query failed"),
		},
	}
	emitter := &fakeAuditEmitter{}
	job := newWalletAuditJob(t, auditor, emitter)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected drift event despite earlier failure, got %d", len(emitter.events))
	}
}

func newWalletAuditJob(t *testing.T, auditor *fakeWalletAuditor, emitter *fakeAuditEmitter) Job {
	t.Helper()
	job, err := NewWalletAuditJob(WalletAuditJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		DB:      walletAuditTxRunner{},
		Outbox:  emitter,
		Wallets: auditor,
	})
	if err != nil {
		t.Fatalf("NewWalletAuditJob: %v", err)
	}
	return job
}
