package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

func TestRepairDryRunWritesNothing(t *testing.T) {
	wallet := testWallet("4000")
	repo := newStubWalletRepo(wallet)
	repo.duplicates = []DuplicateGroup{
		{
			Reference: "payout_77",
			Count:     2,
			Total:     decimal.RequireFromString("4000"),
			First:     decimal.RequireFromString("2000"),
		},
	}
	svc, emitter := newTestService(t, repo)

	result, err := svc.RepairDuplicates(context.Background(), RepairInput{WalletID: wallet.ID})
	if err != nil {
		t.Fatalf("RepairDuplicates: %v", err)
	}
	if !result.DryRun {
		t.Fatal("expected dry run when confirm is absent")
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(result.Findings))
	}
	finding := result.Findings[0]
	if finding.Applied {
		t.Fatal("dry run must not apply reversals")
	}
	if !finding.ExcessAmount.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("excess = %s, want 2000", finding.ExcessAmount)
	}
	if finding.ReversalReference != "payout_77:repair" {
		t.Fatalf("reversal reference = %q", finding.ReversalReference)
	}
	if len(repo.transactions) != 0 || len(emitter.events) != 0 {
		t.Fatal("dry run wrote ledger entries or events")
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("balance mutated in dry run: %s", wallet.Balance)
	}
}

func TestRepairReversesDuplicateCredit(t *testing.T) {
	wallet := testWallet("4000")
	repo := newStubWalletRepo(wallet)
	repo.duplicates = []DuplicateGroup{
		{
			Reference: "payout_77",
			Count:     2,
			Total:     decimal.RequireFromString("4000"),
			First:     decimal.RequireFromString("2000"),
		},
	}
	svc, emitter := newTestService(t, repo)

	result, err := svc.RepairDuplicates(context.Background(), RepairInput{
		WalletID: wallet.ID,
		Confirm:  true,
	})
	if err != nil {
		t.Fatalf("RepairDuplicates: %v", err)
	}
	if result.DryRun {
		t.Fatal("confirmed repair reported as dry run")
	}
	if !result.Findings[0].Applied {
		t.Fatal("expected reversal to apply")
	}
	if !result.BalanceAfter.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("balance after = %s, want 2000", result.BalanceAfter)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("stored balance = %s, want 2000", wallet.Balance)
	}

	entry := repo.transactions[0]
	if entry.Reference != "payout_77:repair" || entry.Type != enums.TransactionTypeDebit {
		t.Fatalf("unexpected reversal entry: %+v", entry)
	}

	var sawRepair bool
	for _, event := range emitter.events {
		if event.EventType == enums.EventWalletRepairApplied {
			sawRepair = true
		}
	}
	if !sawRepair {
		t.Fatal("expected wallet_repair_applied event")
	}
}

func TestRepairRerunIsNoOp(t *testing.T) {
	wallet := testWallet("4000")
	repo := newStubWalletRepo(wallet)
	repo.duplicates = []DuplicateGroup{
		{
			Reference: "payout_77",
			Count:     2,
			Total:     decimal.RequireFromString("4000"),
			First:     decimal.RequireFromString("2000"),
		},
	}
	svc, _ := newTestService(t, repo)

	if _, err := svc.RepairDuplicates(context.Background(), RepairInput{WalletID: wallet.ID, Confirm: true}); err != nil {
		t.Fatalf("first repair: %v", err)
	}
	second, err := svc.RepairDuplicates(context.Background(), RepairInput{WalletID: wallet.ID, Confirm: true})
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if second.Findings[0].Applied {
		t.Fatal("rerun must not apply a second reversal")
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("balance after rerun = %s, want 2000", wallet.Balance)
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(repo.transactions))
	}
}
