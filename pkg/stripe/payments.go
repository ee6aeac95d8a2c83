package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// ChargeParams describes an off-session charge against a saved card.
type ChargeParams struct {
	AmountMinorUnits int64
	Currency         string
	CustomerID       string
	PaymentMethodID  string
	Reference        string
	IdempotencyKey   string
}

// RefundParams describes a full or partial refund of a settled charge.
type RefundParams struct {
	PaymentIntentID  string
	AmountMinorUnits int64
	Reason           string
	IdempotencyKey   string
}

// PaymentClient is the subset of Stripe operations the payment orchestrator needs.
type PaymentClient interface {
	ChargeSavedCard(ctx context.Context, params ChargeParams) (*stripe.PaymentIntent, error)
	Refund(ctx context.Context, params RefundParams) (*stripe.Refund, error)
}

// ChargeSavedCard confirms an off-session PaymentIntent against a stored payment method.
func (c *Client) ChargeSavedCard(ctx context.Context, params ChargeParams) (*stripe.PaymentIntent, error) {
	if params.CustomerID == "" || params.PaymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and payment method are required")
	}
	if params.AmountMinorUnits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	req := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(params.AmountMinorUnits),
		Currency:      stripe.String(strings.ToLower(params.Currency)),
		Customer:      stripe.String(params.CustomerID),
		PaymentMethod: stripe.String(params.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	req.Context = ctx
	if params.Reference != "" {
		req.AddMetadata("reference", params.Reference)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	intent, err := paymentintent.New(req)
	if err != nil {
		return nil, mapStripeError(err, "charge saved card")
	}
	return intent, nil
}

// Refund issues a refund against a PaymentIntent. A zero amount refunds the full charge.
func (c *Client) Refund(ctx context.Context, params RefundParams) (*stripe.Refund, error) {
	if params.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	req := &stripe.RefundParams{
		PaymentIntent: stripe.String(params.PaymentIntentID),
	}
	req.Context = ctx
	if params.AmountMinorUnits > 0 {
		req.Amount = stripe.Int64(params.AmountMinorUnits)
	}
	if params.Reason != "" {
		req.AddMetadata("reason", params.Reason)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	ref, err := refund.New(req)
	if err != nil {
		return nil, mapStripeError(err, "refund")
	}
	return ref, nil
}

func mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "card declined")
		}
		switch stripeErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe credentials rejected")
		case http.StatusTooManyRequests:
			return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, "stripe rate limit")
		}
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe "+op+" rejected")
		}
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "stripe "+op+" failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe "+op+" failed")
}
