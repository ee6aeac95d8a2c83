package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/forkline-app/forkline-backend/pkg/db"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes wallet balance and ledger operations. Credits and debits
// always write a ledger row and the balance together in one transaction.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	Credit(ctx context.Context, input MovementInput) (*MovementResult, error)
	Debit(ctx context.Context, input MovementInput) (*MovementResult, error)
	CreditTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error)
	RepairDuplicates(ctx context.Context, input RepairInput) (*RepairResult, error)
	AuditBalance(ctx context.Context, walletID uuid.UUID) (*AuditResult, error)
	ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the wallet service with its persistence and event dependencies.
func NewService(repo Repository, tx txRunner, emitter outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, logg: logg}, nil
}

// MovementInput describes a single credit or debit against a wallet.
type MovementInput struct {
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Description *string
	Actor       *outbox.ActorRef
}

// MovementResult reports the ledger entry written, or Applied=false when the
// reference was already recorded and the movement was skipped.
type MovementResult struct {
	Transaction *models.WalletTransaction
	Applied     bool
	Balance     decimal.Decimal
}

// AuditResult compares a wallet's stored balance with the sum of its ledger.
type AuditResult struct {
	WalletID      uuid.UUID
	StoredBalance decimal.Decimal
	LedgerBalance decimal.Decimal
	Drift         decimal.Decimal
}

func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load wallet")
	}
	if existing != nil {
		return existing, nil
	}
	created, err := s.repo.Create(ctx, &models.Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: enums.CurrencyNGN,
		Active:   true,
	})
	if err != nil {
		// Lost a create race; the other writer's wallet is the one to use.
		if dbpkg.IsUniqueViolation(err, "") {
			return s.repo.FindByUserID(ctx, userID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create wallet")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (s *service) Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	rows, err := s.repo.ListTransactions(ctx, walletID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list wallet transactions")
	}
	return rows, nil
}

func (s *service) Credit(ctx context.Context, input MovementInput) (*MovementResult, error) {
	var result *MovementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.CreditTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Debit(ctx context.Context, input MovementInput) (*MovementResult, error) {
	var result *MovementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.DebitTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditTx applies a credit inside an existing transaction. A reference that
// has already been recorded for the wallet makes the whole call a no-op.
func (s *service) CreditTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error) {
	return s.move(ctx, tx, enums.TransactionTypeCredit, input)
}

// DebitTx applies a debit inside an existing transaction. The balance is
// re-read inside the transaction and the debit is rejected when it would
// push the balance below zero.
func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error) {
	return s.move(ctx, tx, enums.TransactionTypeDebit, input)
}

func (s *service) move(ctx context.Context, tx *gorm.DB, kind enums.TransactionType, input MovementInput) (*MovementResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindByID(ctx, input.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if !wallet.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is inactive")
	}

	before := wallet.Balance
	var after decimal.Decimal
	switch kind {
	case enums.TransactionTypeCredit:
		after = before.Add(input.Amount)
	case enums.TransactionTypeDebit:
		if before.LessThan(input.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
				WithDetails(map[string]string{
					"balance":  before.String(),
					"required": input.Amount.String(),
				})
		}
		after = before.Sub(input.Amount)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unsupported transaction type %q", kind))
	}

	entry := &models.WalletTransaction{
		WalletID:      wallet.ID,
		Reference:     input.Reference,
		Type:          kind,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   input.Description,
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallet_transactions_wallet_reference") {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"wallet_id": wallet.ID.String(),
				"reference": input.Reference,
				"type":      kind.String(),
			})
			s.logg.Info(logCtx, "wallet movement skipped: reference already recorded")
			return &MovementResult{Applied: false, Balance: before}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record wallet transaction")
	}

	updated, err := repo.UpdateBalance(ctx, wallet.ID, before, after)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update wallet balance")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet balance changed concurrently")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventWalletCredited,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID,
		Actor:         input.Actor,
		Version:       1,
		OccurredAt:    time.Now(),
		Data: payloads.WalletMovementEvent{
			WalletID:      wallet.ID,
			TransactionID: entry.ID,
			Type:          kind,
			Amount:        input.Amount,
			Reference:     input.Reference,
			BalanceAfter:  after,
		},
	}
	if kind == enums.TransactionTypeDebit {
		event.EventType = enums.EventWalletDebited
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to queue wallet event")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":      wallet.ID.String(),
		"transaction_id": entry.ID.String(),
		"reference":      input.Reference,
		"type":           kind.String(),
		"amount":         input.Amount.String(),
		"balance_after":  after.String(),
	})
	s.logg.Info(logCtx, "wallet movement applied")

	return &MovementResult{Transaction: entry, Applied: true, Balance: after}, nil
}

// AuditBalance recomputes the ledger sum for a wallet and reports any drift
// from the stored balance. It never mutates state.
func (s *service) AuditBalance(ctx context.Context, walletID uuid.UUID) (*AuditResult, error) {
	wallet, err := s.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.repo.SumTransactions(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to sum wallet ledger")
	}
	return &AuditResult{
		WalletID:      walletID,
		StoredBalance: wallet.Balance,
		LedgerBalance: ledger,
		Drift:         wallet.Balance.Sub(ledger),
	}, nil
}

func (s *service) ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListWalletIDs(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list wallets")
	}
	return ids, nil
}
