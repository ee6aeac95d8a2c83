package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type repairWalletRequest struct {
	WalletID uuid.UUID `json:"wallet_id" validate:"required"`
	Confirm  bool      `json:"confirm"`
}

// RepairWallet scans a wallet for duplicate-credit references. Without
// confirm it reports findings only; with confirm it reverses the surplus.
func RepairWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req repairWalletRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RepairDuplicates(r.Context(), wallet.RepairInput{
			WalletID: req.WalletID,
			Confirm:  req.Confirm,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuditWallet compares a wallet's stored balance against its ledger sum.
func AuditWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID, err := parseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AuditBalance(r.Context(), walletID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
