package paystackwebhook

import (
	"context"
	"encoding/json"

	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

// Event is the envelope Paystack posts to the webhook endpoint.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	GatewayResponse string `json:"gateway_response"`
}

type paymentConfirmer interface {
	Confirm(ctx context.Context, input payments.ConfirmInput) (*models.Payment, error)
}

type ServiceParams struct {
	Payments paymentConfirmer
	Logger   *logger.Logger
}

// Service maps Paystack charge events onto payment confirmations. The
// transaction reference is the one the redirect strategy supplied when the
// checkout was initialized.
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

func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil || len(event.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "paystack event data required")
	}

	switch event.Event {
	case "charge.success":
		charge, err := decodeCharge(event)
		if err != nil {
			return err
		}
		return s.confirm(ctx, payments.ConfirmInput{
			Reference: charge.Reference,
			Succeeded: true,
			Raw:       event.Data,
		})
	case "charge.failed":
		charge, err := decodeCharge(event)
		if err != nil {
			return err
		}
		return s.confirm(ctx, payments.ConfirmInput{
			Reference:     charge.Reference,
			Succeeded:     false,
			FailureReason: failureReason(charge),
			Raw:           event.Data,
		})
	default:
		return nil
	}
}

func (s *Service) confirm(ctx context.Context, input payments.ConfirmInput) error {
	_, err := s.payments.Confirm(ctx, input)
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		logCtx := s.logg.WithFields(ctx, map[string]any{"reference": input.Reference})
		s.logg.Warn(logCtx, "paystack event references unknown payment; dropped")
		return nil
	}
	return err
}

func decodeCharge(event *Event) (*chargeData, error) {
	var charge chargeData
	if err := json.Unmarshal(event.Data, &charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}
	if charge.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}
	return &charge, nil
}

func failureReason(charge *chargeData) string {
	if charge.GatewayResponse != "" {
		return charge.GatewayResponse
	}
	return "charge failed at provider"
}
