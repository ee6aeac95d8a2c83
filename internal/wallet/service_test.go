package wallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

type stubWalletRepo struct {
	wallets      map[uuid.UUID]*models.Wallet
	transactions []models.WalletTransaction
	references   map[string]bool
	duplicates   []DuplicateGroup
	ledgerSum    decimal.Decimal

	insertErr error
	updateErr error
}

func newStubWalletRepo(wallets ...*models.Wallet) *stubWalletRepo {
	repo := &stubWalletRepo{
		wallets:    make(map[uuid.UUID]*models.Wallet),
		references: make(map[string]bool),
	}
	for _, w := range wallets {
		repo.wallets[w.ID] = w
	}
	return repo
}

func (s *stubWalletRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubWalletRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, w := range s.wallets {
		if w.UserID == userID {
			return w, nil
		}
	}
	return nil, nil
}

func (s *stubWalletRepo) FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return s.wallets[walletID], nil
}

func (s *stubWalletRepo) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	s.wallets[wallet.ID] = wallet
	return wallet, nil
}

func (s *stubWalletRepo) UpdateBalance(ctx context.Context, walletID uuid.UUID, from, to decimal.Decimal) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	wallet, ok := s.wallets[walletID]
	if !ok || !wallet.Balance.Equal(from) {
		return false, nil
	}
	wallet.Balance = to
	return true, nil
}

func (s *stubWalletRepo) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	key := txn.WalletID.String() + "|" + txn.Reference
	if s.references[key] {
		return fmt.Errorf(`duplicate key value violates unique constraint "ux_wallet_transactions_wallet_reference"`)
	}
	s.references[key] = true
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	s.transactions = append(s.transactions, *txn)
	return nil
}

func (s *stubWalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return s.transactions, nil
}

func (s *stubWalletRepo) SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return s.ledgerSum, nil
}

func (s *stubWalletRepo) FindDuplicateGroups(ctx context.Context, walletID uuid.UUID) ([]DuplicateGroup, error) {
	return s.duplicates, nil
}

func (s *stubWalletRepo) ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(s.wallets))
	for id := range s.wallets {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type capturedEvents struct {
	events []outbox.DomainEvent
}

func (c *capturedEvents) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func newTestService(t *testing.T, repo Repository) (Service, *capturedEvents) {
	t.Helper()
	emitter := &capturedEvents{}
	svc, err := NewService(repo, stubTxRunner{}, emitter, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, emitter
}

func testWallet(balance string) *models.Wallet {
	return &models.Wallet{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Balance:  decimal.RequireFromString(balance),
		Currency: enums.CurrencyNGN,
		Active:   true,
	}
}

func TestCreditAppliesAndEmits(t *testing.T) {
	wallet := testWallet("1000")
	repo := newStubWalletRepo(wallet)
	svc, emitter := newTestService(t, repo)

	result, err := svc.Credit(context.Background(), MovementInput{
		WalletID:  wallet.ID,
		Amount:    decimal.RequireFromString("2000"),
		Reference: "payout_77",
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected credit to apply")
	}
	if !result.Balance.Equal(decimal.RequireFromString("3000")) {
		t.Fatalf("balance = %s, want 3000", result.Balance)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("3000")) {
		t.Fatalf("stored balance = %s, want 3000", wallet.Balance)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventWalletCredited {
		t.Fatalf("expected one wallet_credited event, got %+v", emitter.events)
	}
}

func TestCreditDuplicateReferenceIsNoOp(t *testing.T) {
	wallet := testWallet("1000")
	repo := newStubWalletRepo(wallet)
	svc, emitter := newTestService(t, repo)

	input := MovementInput{
		WalletID:  wallet.ID,
		Amount:    decimal.RequireFromString("2000"),
		Reference: "payout_77",
	}
	if _, err := svc.Credit(context.Background(), input); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	result, err := svc.Credit(context.Background(), input)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if result.Applied {
		t.Fatal("expected duplicate credit to be skipped")
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("3000")) {
		t.Fatalf("balance = %s, want 3000 after duplicate", wallet.Balance)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %d", len(emitter.events))
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	wallet := testWallet("500")
	repo := newStubWalletRepo(wallet)
	svc, _ := newTestService(t, repo)

	_, err := svc.Debit(context.Background(), MovementInput{
		WalletID:  wallet.ID,
		Amount:    decimal.RequireFromString("750"),
		Reference: "order_1",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("balance mutated on rejected debit: %s", wallet.Balance)
	}
}

func TestDebitUpdatesBalanceAndLedger(t *testing.T) {
	wallet := testWallet("5000")
	repo := newStubWalletRepo(wallet)
	svc, emitter := newTestService(t, repo)

	result, err := svc.Debit(context.Background(), MovementInput{
		WalletID:  wallet.ID,
		Amount:    decimal.RequireFromString("5000"),
		Reference: "order_9",
	})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !result.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", result.Balance)
	}
	entry := repo.transactions[0]
	if entry.Type != enums.TransactionTypeDebit {
		t.Fatalf("type = %s, want debit", entry.Type)
	}
	if !entry.BalanceBefore.Equal(decimal.RequireFromString("5000")) || !entry.BalanceAfter.IsZero() {
		t.Fatalf("ledger balances = %s -> %s", entry.BalanceBefore, entry.BalanceAfter)
	}
	if emitter.events[0].EventType != enums.EventWalletDebited {
		t.Fatalf("event = %s, want wallet_debited", emitter.events[0].EventType)
	}
}

func TestMovementValidation(t *testing.T) {
	wallet := testWallet("100")
	repo := newStubWalletRepo(wallet)
	svc, _ := newTestService(t, repo)

	cases := []struct {
		name  string
		input MovementInput
	}{
		{"missing wallet", MovementInput{Amount: decimal.NewFromInt(10), Reference: "r"}},
		{"missing reference", MovementInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(10)}},
		{"zero amount", MovementInput{WalletID: wallet.ID, Reference: "r"}},
		{"negative amount", MovementInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(-5), Reference: "r"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Credit(context.Background(), tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	wallet := testWallet("250")
	repo := newStubWalletRepo(wallet)
	svc, _ := newTestService(t, repo)

	got, err := svc.GetOrCreate(context.Background(), wallet.UserID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.ID != wallet.ID {
		t.Fatalf("expected existing wallet, got %s", got.ID)
	}

	fresh, err := svc.GetOrCreate(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetOrCreate new: %v", err)
	}
	if !fresh.Balance.IsZero() || fresh.Currency != enums.CurrencyNGN {
		t.Fatalf("unexpected new wallet defaults: %+v", fresh)
	}
}

func TestAuditBalanceReportsDrift(t *testing.T) {
	wallet := testWallet("1200")
	repo := newStubWalletRepo(wallet)
	repo.ledgerSum = decimal.RequireFromString("1000")
	svc, _ := newTestService(t, repo)

	audit, err := svc.AuditBalance(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("AuditBalance: %v", err)
	}
	if !audit.Drift.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("drift = %s, want 200", audit.Drift)
	}
}

func TestInactiveWalletRejectsMovements(t *testing.T) {
	wallet := testWallet("100")
	wallet.Active = false
	repo := newStubWalletRepo(wallet)
	svc, _ := newTestService(t, repo)

	_, err := svc.Credit(context.Background(), MovementInput{
		WalletID:  wallet.ID,
		Amount:    decimal.NewFromInt(10),
		Reference: "r",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}
