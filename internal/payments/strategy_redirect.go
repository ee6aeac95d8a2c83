package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/money"
	"github.com/forkline-app/forkline-backend/pkg/paystack"
)

// paystackGateway is the slice of the Paystack client the redirect strategy uses.
type paystackGateway interface {
	InitializeTransaction(ctx context.Context, params paystack.InitTransactionParams) (*paystack.Transaction, error)
	RefundTransaction(ctx context.Context, params paystack.RefundParams) (*paystack.Refund, error)
}

// redirectStrategy starts a gateway-hosted checkout with Paystack. The
// customer is sent to the authorization URL and the payment stays processing
// until the charge webhook reconciles it.
type redirectStrategy struct {
	gateway paystackGateway
}

// NewRedirectStrategy builds the Paystack redirect strategy.
func NewRedirectStrategy(gateway paystackGateway) (Strategy, error) {
	if gateway == nil {
		return nil, fmt.Errorf("paystack gateway is required")
	}
	return &redirectStrategy{gateway: gateway}, nil
}

func (s *redirectStrategy) Provider() enums.PaymentProvider {
	return enums.PaymentProviderPaystack
}

func (s *redirectStrategy) Initiate(ctx context.Context, payment *models.Payment, meta InitiateMeta) (*Outcome, error) {
	if meta.CustomerEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required for gateway checkout")
	}
	if payment.ExternalReference == nil || *payment.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reference missing")
	}

	txn, err := s.gateway.InitializeTransaction(ctx, paystack.InitTransactionParams{
		Email:            meta.CustomerEmail,
		AmountMinorUnits: money.ToMinorUnits(payment.Amount, payment.Currency),
		Currency:         payment.Currency.String(),
		Reference:        *payment.ExternalReference,
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Status:            enums.PaymentStatusProcessing,
		ExternalReference: txn.Reference,
		AuthorizationURL:  txn.AuthorizationURL,
		Raw:               txn.Raw,
	}, nil
}

func (s *redirectStrategy) Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reference string) (json.RawMessage, error) {
	if payment.ExternalReference == nil || *payment.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference to refund")
	}
	ref, err := s.gateway.RefundTransaction(ctx, paystack.RefundParams{
		Transaction:      *payment.ExternalReference,
		AmountMinorUnits: money.ToMinorUnits(amount, payment.Currency),
		MerchantNote:     "refund " + reference,
	})
	if err != nil {
		return nil, err
	}
	raw, marshalErr := json.Marshal(map[string]string{
		"refund_id": strconv.FormatInt(ref.ID, 10),
		"status":    ref.Status,
	})
	if marshalErr != nil {
		return nil, nil
	}
	return raw, nil
}
