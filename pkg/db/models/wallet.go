package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Wallet holds a per-user balance. The balance is mutated only alongside a
// WalletTransaction row inside the same database transaction; it always
// equals the sum of the wallet's transaction amounts.
type Wallet struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(20,8);not null;default:0"`
	Currency  enums.Currency  `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Active    bool            `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// WalletTransaction is an append-only ledger entry. The unique
// (wallet_id, reference) pair is the structural guard against duplicate
// credits: a redelivered webhook re-inserts the same reference and is
// treated as a no-op.
type WalletTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID      uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_wallet_transactions_wallet_reference"`
	Reference     string                `gorm:"column:reference;not null;uniqueIndex:ux_wallet_transactions_wallet_reference"`
	Type          enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(20,8);not null"`
	BalanceBefore decimal.Decimal       `gorm:"column:balance_before;type:numeric(20,8);not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(20,8);not null"`
	Description   *string               `gorm:"column:description"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
