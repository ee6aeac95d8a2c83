package payments

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// InitiateMeta carries the method-specific details a strategy needs to start
// a charge: the customer's email for redirect checkouts, the saved card
// handles for off-session charges.
type InitiateMeta struct {
	CustomerEmail string
	Card          *CardDetails
}

// Outcome is what a strategy's initiate call produced. Status is processing
// for asynchronous flows, completed when the provider settled synchronously,
// or failed for permanent declines (with the provider's reason preserved).
type Outcome struct {
	Status            enums.PaymentStatus
	ExternalReference string
	AuthorizationURL  string
	FailureReason     string
	Raw               json.RawMessage
}

// Strategy is the per-method payment capability. Initiate talks to the
// provider before any local settlement state is written; transient provider
// failures surface as retryable errors while declines come back as a failed
// Outcome. Refund issues the provider-side reversal keyed by an idempotent
// reference.
type Strategy interface {
	Provider() enums.PaymentProvider
	Initiate(ctx context.Context, payment *models.Payment, meta InitiateMeta) (*Outcome, error)
	Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reference string) (json.RawMessage, error)
}

// Strategies maps each supported payment method to its strategy.
type Strategies map[enums.PaymentMethod]Strategy

func (s Strategies) byMethod(method enums.PaymentMethod) (Strategy, error) {
	strategy, ok := s[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]string{"method": method.String()})
	}
	return strategy, nil
}

func (s Strategies) byProvider(provider enums.PaymentProvider) (Strategy, error) {
	for _, strategy := range s {
		if strategy.Provider() == provider {
			return strategy, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "no strategy for payment provider").
		WithDetails(map[string]string{"provider": provider.String()})
}
