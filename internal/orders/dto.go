package orders

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

// CreateOrderItemInput is one priced line captured at order creation.
type CreateOrderItemInput struct {
	MenuItemID     uuid.UUID
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	Customizations json.RawMessage
}

// CreateOrderInput carries everything the state machine needs to open an
// order. DeliveryFee comes from the selected quote, or zero for pickup.
type CreateOrderInput struct {
	CustomerID        uuid.UUID
	VendorID          uuid.UUID
	Type              enums.OrderType
	PaymentMethod     enums.PaymentMethod
	Currency          enums.Currency
	DeliveryAddressID *uuid.UUID
	DeliveryQuoteID   *uuid.UUID
	DeliveryFee       decimal.Decimal
	DiscountAmount    decimal.Decimal
	Items             []CreateOrderItemInput
	Actor             *outbox.ActorRef
}

// UpdateStatusInput drives vendor/ops fulfillment transitions.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Actor   *outbox.ActorRef
}

// CancelInput captures a cancellation request. Reason and actor are required.
type CancelInput struct {
	OrderID  uuid.UUID
	Reason   string
	ActorKind enums.CancelActor
	Actor    *outbox.ActorRef
}
