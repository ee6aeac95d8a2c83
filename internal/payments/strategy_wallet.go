package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// walletLedger is the slice of the wallet service payments rely on. Movements
// inside the settlement transaction use the Tx variants; refunds credit
// through the standalone Credit.
type walletLedger interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, input wallet.MovementInput) (*wallet.MovementResult, error)
	CreditTx(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*wallet.MovementResult, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*wallet.MovementResult, error)
}

// walletStrategy settles against the internal ledger. There is no external
// provider: initiate only verifies funds, and the orchestrator performs the
// debit inside the settlement transaction so the ledger row and the payment
// row commit together.
type walletStrategy struct {
	ledger walletLedger
}

// NewWalletStrategy builds the internal-wallet payment strategy.
func NewWalletStrategy(ledger walletLedger) (Strategy, error) {
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger is required")
	}
	return &walletStrategy{ledger: ledger}, nil
}

func (s *walletStrategy) Provider() enums.PaymentProvider {
	return enums.PaymentProviderWallet
}

// Initiate fails fast on insufficient balance so no payment row is ever
// created for a debit that cannot succeed.
func (s *walletStrategy) Initiate(ctx context.Context, payment *models.Payment, _ InitiateMeta) (*Outcome, error) {
	w, err := s.ledger.GetByUserID(ctx, payment.CustomerID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is inactive")
	}
	if w.Balance.LessThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
			WithDetails(map[string]string{
				"balance":  w.Balance.String(),
				"required": payment.Amount.String(),
			})
	}
	return &Outcome{Status: enums.PaymentStatusCompleted}, nil
}

// Refund credits the debited amount back to the customer's wallet. The
// reference makes a re-run a ledger no-op.
func (s *walletStrategy) Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reference string) (json.RawMessage, error) {
	w, err := s.ledger.GetByUserID(ctx, payment.CustomerID)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("refund of payment %s", payment.ID)
	_, err = s.ledger.Credit(ctx, wallet.MovementInput{
		WalletID:    w.ID,
		Amount:      amount,
		Reference:   reference,
		Description: &description,
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}
