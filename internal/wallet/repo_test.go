package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// The unique (wallet_id, reference) guard is deliberately absent here:
	// repair exists for ledgers written before the guard was in place.
	ddl := `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  reference TEXT NOT NULL,
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  balance_before NUMERIC NOT NULL DEFAULT 0,
  balance_after NUMERIC NOT NULL DEFAULT 0,
  description TEXT,
  created_at DATETIME
);`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("failed to create wallet_transactions: %v", err)
	}
	return db
}

func insertLedgerRow(t *testing.T, db *gorm.DB, walletID uuid.UUID, reference string, txnType enums.TransactionType, amount string, at time.Time) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO wallet_transactions (id, wallet_id, reference, type, amount, balance_before, balance_after, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
		uuid.New(), walletID, reference, txnType, amount, at,
	).Error
	if err != nil {
		t.Fatalf("failed to insert ledger row: %v", err)
	}
}

func TestFindDuplicateGroupsKeepsEarliestCredit(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	walletID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The earliest credit carries the largest amount; the redeliveries that
	// followed recorded smaller ones.
	insertLedgerRow(t, db, walletID, "pay_dup", enums.TransactionTypeCredit, "500", base)
	insertLedgerRow(t, db, walletID, "pay_dup", enums.TransactionTypeCredit, "200", base.Add(time.Minute))
	insertLedgerRow(t, db, walletID, "pay_dup", enums.TransactionTypeCredit, "200", base.Add(2*time.Minute))
	// A debit sharing the reference predates every credit and must not be
	// mistaken for the kept entry.
	insertLedgerRow(t, db, walletID, "pay_dup", enums.TransactionTypeDebit, "999", base.Add(-time.Hour))
	// Noise: a clean single credit and another wallet's duplicates.
	insertLedgerRow(t, db, walletID, "pay_clean", enums.TransactionTypeCredit, "300", base)
	otherWallet := uuid.New()
	insertLedgerRow(t, db, otherWallet, "pay_dup", enums.TransactionTypeCredit, "50", base.Add(-2*time.Hour))

	groups, err := repo.FindDuplicateGroups(context.Background(), walletID)
	if err != nil {
		t.Fatalf("FindDuplicateGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	group := groups[0]
	if group.Reference != "pay_dup" {
		t.Fatalf("reference = %q, want pay_dup", group.Reference)
	}
	if group.Count != 3 {
		t.Fatalf("count = %d, want 3", group.Count)
	}
	if !group.Total.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("total = %s, want 900", group.Total)
	}
	if !group.First.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("first = %s, want the earliest credit of 500", group.First)
	}
	if excess := group.Total.Sub(group.First); !excess.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("excess = %s, want 400", excess)
	}
}

func TestFindDuplicateGroupsEmptyForCleanLedger(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	walletID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	insertLedgerRow(t, db, walletID, "pay_1", enums.TransactionTypeCredit, "100", base)
	insertLedgerRow(t, db, walletID, "pay_2", enums.TransactionTypeCredit, "250", base.Add(time.Minute))

	groups, err := repo.FindDuplicateGroups(context.Background(), walletID)
	if err != nil {
		t.Fatalf("FindDuplicateGroups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("groups = %d, want none", len(groups))
	}
}
