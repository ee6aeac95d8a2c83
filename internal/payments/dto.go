package payments

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

// CardDetails identifies a saved card at the gateway.
type CardDetails struct {
	GatewayCustomerID string
	PaymentMethodID   string
}

// InitiateInput starts a payment attempt against an order.
type InitiateInput struct {
	OrderID       uuid.UUID
	CustomerID    uuid.UUID
	Method        enums.PaymentMethod
	CustomerEmail string
	Card          *CardDetails
	Actor         *outbox.ActorRef
}

// FundWalletInput starts an order-less payment that credits the customer's
// wallet once the gateway confirms it.
type FundWalletInput struct {
	CustomerID    uuid.UUID
	Amount        decimal.Decimal
	Currency      enums.Currency
	Method        enums.PaymentMethod
	CustomerEmail string
	Card          *CardDetails
	Actor         *outbox.ActorRef
}

// InitiateResult reports the created payment and, for redirect flows, where
// to send the customer.
type InitiateResult struct {
	Payment          *models.Payment
	AuthorizationURL string
}

// ConfirmInput reconciles a gateway's asynchronous outcome with the payment
// it references.
type ConfirmInput struct {
	Reference     string
	Succeeded     bool
	FailureReason string
	Raw           json.RawMessage
	Actor         *outbox.ActorRef
}

// RefundInput refunds part or all of a completed payment. A nil amount
// refunds whatever has not been refunded yet.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    *decimal.Decimal
	Reason    string
	Actor     *outbox.ActorRef
}

// CancelOrderInput cancels an order together with its payment compensation.
type CancelOrderInput struct {
	OrderID   uuid.UUID
	Reason    string
	ActorKind enums.CancelActor
	Actor     *outbox.ActorRef
}
