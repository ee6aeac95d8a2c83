package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type paymentConfirmer interface {
	Confirm(ctx context.Context, input payments.ConfirmInput) (*models.Payment, error)
}

type ServiceParams struct {
	Payments paymentConfirmer
	Logger   *logger.Logger
}

// Service maps Stripe payment-intent events onto payment confirmations. The
// intent id is the reference the saved-card strategy stored at initiation.
type Service struct {
	payments paymentConfirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.confirm(ctx, payments.ConfirmInput{
			Reference: intent.ID,
			Succeeded: true,
			Raw:       event.Data.Raw,
		})
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.confirm(ctx, payments.ConfirmInput{
			Reference:     intent.ID,
			Succeeded:     false,
			FailureReason: failureReason(intent),
			Raw:           event.Data.Raw,
		})
	default:
		// Events we did not subscribe the handler to are acknowledged
		// without action.
		return nil
	}
}

func (s *Service) confirm(ctx context.Context, input payments.ConfirmInput) error {
	_, err := s.payments.Confirm(ctx, input)
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		// References we never issued (other environments, stale test
		// data) are dropped, not retried.
		logCtx := s.logg.WithFields(ctx, map[string]any{"reference": input.Reference})
		s.logg.Warn(logCtx, "stripe event references unknown payment; dropped")
		return nil
	}
	return err
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}

func failureReason(intent *stripe.PaymentIntent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return "payment failed at provider"
}
