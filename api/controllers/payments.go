package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type cardDetailsRequest struct {
	GatewayCustomerID string `json:"gateway_customer_id" validate:"required"`
	PaymentMethodID   string `json:"payment_method_id" validate:"required"`
}

type initiatePaymentRequest struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	Method        string              `json:"method" validate:"required"`
	CustomerEmail string              `json:"customer_email,omitempty" validate:"omitempty,email"`
	Card          *cardDetailsRequest `json:"card,omitempty"`
}

type paymentResponse struct {
	Payment          *models.Payment `json:"payment"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
}

// InitiatePayment starts a payment attempt for an order.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.InitiatePayment(r.Context(), payments.InitiateInput{
			OrderID:       req.OrderID,
			CustomerID:    customerID,
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

// GetPayment returns one payment. Customers see only their own.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := parseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role := middleware.RoleFromContext(r.Context())
		if role == enums.ActorRoleCustomer && payment.CustomerID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"))
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// ListOrderPayments returns every attempt recorded against an order.
func ListOrderPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type refundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason" validate:"required"`
}

// RefundPayment reverses part or all of a settled payment. Admin and ops only.
func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := parseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), payments.RefundInput{
			PaymentID: paymentID,
			Amount:    req.Amount,
			Reason:    validators.SanitizeString(req.Reason, 500),
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func cardDetails(req *cardDetailsRequest) *payments.CardDetails {
	if req == nil {
		return nil
	}
	return &payments.CardDetails{
		GatewayCustomerID: req.GatewayCustomerID,
		PaymentMethodID:   req.PaymentMethodID,
	}
}
