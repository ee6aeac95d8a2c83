package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

// GetWallet returns the caller's wallet, creating it on first access.
func GetWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.GetOrCreate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// WalletTransactions pages the caller's ledger, newest first.
func WalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.GetOrCreate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Transactions(r.Context(), row.ID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type fundWalletRequest struct {
	Amount        decimal.Decimal     `json:"amount" validate:"required"`
	Currency      string              `json:"currency,omitempty"`
	Method        string              `json:"method" validate:"required"`
	CustomerEmail string              `json:"customer_email,omitempty" validate:"omitempty,email"`
	Card          *cardDetailsRequest `json:"card,omitempty"`
}

// FundWallet starts a gateway payment whose settlement credits the caller's
// wallet.
func FundWallet(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req fundWalletRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.FundWallet(r.Context(), payments.FundWalletInput{
			CustomerID:    customerID,
			Amount:        req.Amount,
			Currency:      enums.Currency(req.Currency),
			Method:        method,
			CustomerEmail: req.CustomerEmail,
			Card:          cardDetails(req.Card),
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, paymentResponse{
			Payment:          result.Payment,
			AuthorizationURL: result.AuthorizationURL,
		})
	}
}
