package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v84"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/money"
	"github.com/forkline-app/forkline-backend/pkg/stripe"
)

// savedCardStrategy charges a stored card off-session through Stripe. The
// charge either settles synchronously, stays processing until the webhook
// confirms it, or is declined permanently.
type savedCardStrategy struct {
	client stripe.PaymentClient
}

// NewSavedCardStrategy builds the Stripe saved-card strategy.
func NewSavedCardStrategy(client stripe.PaymentClient) (Strategy, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	return &savedCardStrategy{client: client}, nil
}

func (s *savedCardStrategy) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (s *savedCardStrategy) Initiate(ctx context.Context, payment *models.Payment, meta InitiateMeta) (*Outcome, error) {
	if meta.Card == nil || meta.Card.GatewayCustomerID == "" || meta.Card.PaymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "saved card details are required")
	}

	reference := ""
	if payment.ExternalReference != nil {
		reference = *payment.ExternalReference
	}
	intent, err := s.client.ChargeSavedCard(ctx, stripe.ChargeParams{
		AmountMinorUnits: money.ToMinorUnits(payment.Amount, payment.Currency),
		Currency:         payment.Currency.String(),
		CustomerID:       meta.Card.GatewayCustomerID,
		PaymentMethodID:  meta.Card.PaymentMethodID,
		Reference:        reference,
		IdempotencyKey:   payment.ID.String(),
	})
	if err != nil {
		// Declines are a permanent outcome, not an error: the payment is
		// marked failed with the provider's reason kept verbatim.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeProvider {
			return &Outcome{
				Status:        enums.PaymentStatusFailed,
				FailureReason: declineReason(err),
			}, nil
		}
		return nil, err
	}

	outcome := &Outcome{
		ExternalReference: intent.ID,
		Raw:               marshalIntent(intent),
	}
	switch intent.Status {
	case stripesdk.PaymentIntentStatusSucceeded:
		outcome.Status = enums.PaymentStatusCompleted
	case stripesdk.PaymentIntentStatusCanceled:
		outcome.Status = enums.PaymentStatusFailed
		outcome.FailureReason = "payment intent cancelled by provider"
	default:
		outcome.Status = enums.PaymentStatusProcessing
	}
	return outcome, nil
}

func (s *savedCardStrategy) Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reference string) (json.RawMessage, error) {
	if payment.ExternalReference == nil || *payment.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference to refund")
	}
	ref, err := s.client.Refund(ctx, stripe.RefundParams{
		PaymentIntentID:  *payment.ExternalReference,
		AmountMinorUnits: money.ToMinorUnits(amount, payment.Currency),
		IdempotencyKey:   reference,
	})
	if err != nil {
		return nil, err
	}
	raw, marshalErr := json.Marshal(ref)
	if marshalErr != nil {
		return nil, nil
	}
	return raw, nil
}

func declineReason(err error) string {
	var stripeErr *stripesdk.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

func marshalIntent(intent *stripesdk.PaymentIntent) json.RawMessage {
	if intent == nil {
		return nil
	}
	raw, err := json.Marshal(map[string]any{
		"id":     intent.ID,
		"status": intent.Status,
		"amount": intent.Amount,
	})
	if err != nil {
		return nil
	}
	return raw
}
