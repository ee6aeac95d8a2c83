package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
)

// Repository defines persistence operations for wallets and their ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, walletID uuid.UUID, from, to decimal.Decimal) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	FindDuplicateGroups(ctx context.Context, walletID uuid.UUID) ([]DuplicateGroup, error)
	ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
}

// DuplicateGroup describes credit transactions sharing one external
// reference. First carries the amount of the earliest credit; repair keeps
// that one and reverses everything recorded after it.
type DuplicateGroup struct {
	Reference string
	Count     int
	Total     decimal.Decimal
	First     decimal.Decimal
}
