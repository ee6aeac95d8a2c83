package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

// RepairInput drives the duplicate-credit repair for one wallet. Confirm must
// be true before anything is written; without it the call is a dry run.
type RepairInput struct {
	WalletID uuid.UUID
	Confirm  bool
	Actor    *outbox.ActorRef
}

// RepairFinding describes one reference that was credited more than once.
type RepairFinding struct {
	Reference         string          `json:"reference"`
	DuplicateCount    int             `json:"duplicate_count"`
	ExcessAmount      decimal.Decimal `json:"excess_amount"`
	ReversalReference string          `json:"reversal_reference"`
	Applied           bool            `json:"applied"`
}

// RepairResult reports the findings and, when confirmed, the balance change.
type RepairResult struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	DryRun        bool            `json:"dry_run"`
	Findings      []RepairFinding `json:"findings"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// RepairDuplicates scans a wallet's credit ledger for references recorded more
// than once and reverses the excess with a single compensating debit per
// reference. The reversal reference is derived from the duplicated one, so a
// repeated repair run inserts nothing new.
func (s *service) RepairDuplicates(ctx context.Context, input RepairInput) (*RepairResult, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}

	wallet, err := s.Get(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}

	groups, err := s.repo.FindDuplicateGroups(ctx, input.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to scan for duplicate credits")
	}

	result := &RepairResult{
		WalletID:      wallet.ID,
		DryRun:        !input.Confirm,
		Findings:      make([]RepairFinding, 0, len(groups)),
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance,
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":       wallet.ID.String(),
		"balance_before":  wallet.Balance.String(),
		"duplicate_count": len(groups),
		"dry_run":         !input.Confirm,
	})
	s.logg.Info(logCtx, "wallet repair scan")

	for _, group := range groups {
		excess := group.Total.Sub(group.First)
		finding := RepairFinding{
			Reference:         group.Reference,
			DuplicateCount:    group.Count,
			ExcessAmount:      excess,
			ReversalReference: repairReference(group.Reference),
		}
		if !input.Confirm || !excess.IsPositive() {
			result.Findings = append(result.Findings, finding)
			continue
		}

		applied, balanceAfter, err := s.reverseExcess(ctx, wallet.ID, group, excess, input.Actor)
		if err != nil {
			return nil, err
		}
		finding.Applied = applied
		result.Findings = append(result.Findings, finding)
		if applied {
			result.BalanceAfter = balanceAfter
		}
	}

	doneCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":     wallet.ID.String(),
		"balance_after": result.BalanceAfter.String(),
		"dry_run":       result.DryRun,
		"findings":      len(result.Findings),
	})
	s.logg.Info(doneCtx, "wallet repair finished")

	return result, nil
}

// reverseExcess writes one compensating debit for a duplicated reference.
// The debit reuses the derived reversal reference, so the unique ledger
// constraint turns a repeated run into a no-op.
func (s *service) reverseExcess(ctx context.Context, walletID uuid.UUID, group DuplicateGroup, excess decimal.Decimal, actor *outbox.ActorRef) (bool, decimal.Decimal, error) {
	var applied bool
	var balanceAfter decimal.Decimal
	description := fmt.Sprintf("reversal of %d duplicate credits for %s", group.Count-1, group.Reference)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		movement, err := s.DebitTx(ctx, tx, MovementInput{
			WalletID:    walletID,
			Amount:      excess,
			Reference:   repairReference(group.Reference),
			Description: &description,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		applied = movement.Applied
		balanceAfter = movement.Balance
		if !movement.Applied {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletRepairApplied,
			AggregateType: enums.AggregateWallet,
			AggregateID:   walletID,
			Actor:         actor,
			Version:       1,
			OccurredAt:    time.Now(),
			Data: payloads.WalletRepairAppliedEvent{
				WalletID:           walletID,
				Reference:          group.Reference,
				DuplicateCount:     group.Count,
				ReversedAmount:     excess,
				ReversalReference:  repairReference(group.Reference),
				BalanceAfterRepair: movement.Balance,
			},
		})
	})
	if err != nil {
		return false, decimal.Zero, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":       walletID.String(),
		"reference":       group.Reference,
		"duplicate_count": group.Count,
		"reversed_amount": excess.String(),
		"applied":         applied,
	})
	s.logg.Info(logCtx, "wallet repair reversal")

	return applied, balanceAfter, nil
}

func repairReference(reference string) string {
	return reference + ":repair"
}
