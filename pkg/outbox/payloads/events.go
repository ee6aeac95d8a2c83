package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order awaiting payment.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	VendorID   uuid.UUID         `json:"vendor_id"`
	OrderType  enums.OrderType   `json:"order_type"`
	Currency   enums.Currency    `json:"currency"`
	Total      decimal.Decimal   `json:"total"`
	Status     enums.OrderStatus `json:"status"`
}

// OrderConfirmedEvent is emitted once payment settles and the order moves to confirmed.
type OrderConfirmedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// OrderStateChangedEvent reports every status transition on an order.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when an order reaches cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	CancelledBy enums.CancelActor `json:"cancelled_by"`
	Reason      string            `json:"reason,omitempty"`
	Refunded    bool              `json:"refunded"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// OrderDeliveredEvent marks the terminal delivered state.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	DeliveryID  *uuid.UUID `json:"delivery_id,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// PaymentCompletedEvent is emitted when a payment settles.
type PaymentCompletedEvent struct {
	PaymentID uuid.UUID             `json:"payment_id"`
	OrderID   *uuid.UUID            `json:"order_id,omitempty"`
	Provider  enums.PaymentProvider `json:"provider"`
	Method    enums.PaymentMethod   `json:"method"`
	Amount    decimal.Decimal       `json:"amount"`
	Currency  enums.Currency        `json:"currency"`
	Reference string                `json:"reference"`
}

// PaymentFailedEvent is emitted when a payment reaches failed.
type PaymentFailedEvent struct {
	PaymentID uuid.UUID             `json:"payment_id"`
	OrderID   *uuid.UUID            `json:"order_id,omitempty"`
	Provider  enums.PaymentProvider `json:"provider"`
	Reason    string                `json:"reason,omitempty"`
}

// PaymentRefundedEvent covers both full and partial refunds.
type PaymentRefundedEvent struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`
	Partial        bool            `json:"partial"`
}

// WalletMovementEvent carries a single ledger entry (credit or debit).
type WalletMovementEvent struct {
	WalletID      uuid.UUID             `json:"wallet_id"`
	TransactionID uuid.UUID             `json:"transaction_id"`
	Type          enums.TransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	Reference     string                `json:"reference"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
}

// WalletRepairAppliedEvent records a reversal of a duplicate credit.
type WalletRepairAppliedEvent struct {
	WalletID           uuid.UUID       `json:"wallet_id"`
	Reference          string          `json:"reference"`
	DuplicateCount     int             `json:"duplicate_count"`
	ReversedAmount     decimal.Decimal `json:"reversed_amount"`
	ReversalReference  string          `json:"reversal_reference"`
	BalanceAfterRepair decimal.Decimal `json:"balance_after_repair"`
}

// WalletBalanceDriftEvent flags a wallet whose balance disagrees with its ledger.
type WalletBalanceDriftEvent struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	StoredBalance decimal.Decimal `json:"stored_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Drift         decimal.Decimal `json:"drift"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// DeliveryCreatedEvent is emitted when a shipment is booked with a provider.
type DeliveryCreatedEvent struct {
	DeliveryID     uuid.UUID              `json:"delivery_id"`
	OrderID        uuid.UUID              `json:"order_id"`
	Provider       enums.DeliveryProvider `json:"provider"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Fee            decimal.Decimal        `json:"fee"`
}

// DeliveryStatusChangedEvent reports provider-driven tracking transitions.
type DeliveryStatusChangedEvent struct {
	DeliveryID uuid.UUID              `json:"delivery_id"`
	OrderID    uuid.UUID              `json:"order_id"`
	Provider   enums.DeliveryProvider `json:"provider"`
	FromStatus enums.DeliveryStatus   `json:"from_status"`
	ToStatus   enums.DeliveryStatus   `json:"to_status"`
	ChangedAt  time.Time              `json:"changed_at"`
}

// DeliveryCreationFailedEvent is emitted when booking with a provider fails.
type DeliveryCreationFailedEvent struct {
	OrderID  uuid.UUID              `json:"order_id"`
	QuoteID  uuid.UUID              `json:"quote_id"`
	Provider enums.DeliveryProvider `json:"provider"`
	Reason   string                 `json:"reason,omitempty"`
}

// DeliveryQuoteExpiredEvent is emitted by the quote hygiene job.
type DeliveryQuoteExpiredEvent struct {
	QuoteID   uuid.UUID              `json:"quote_id"`
	OrderID   uuid.UUID              `json:"order_id"`
	Provider  enums.DeliveryProvider `json:"provider"`
	ExpiredAt time.Time              `json:"expired_at"`
}

// PaymentAttemptExpiredEvent is emitted when a stale pending payment is cancelled.
type PaymentAttemptExpiredEvent struct {
	PaymentID uuid.UUID             `json:"payment_id"`
	OrderID   *uuid.UUID            `json:"order_id,omitempty"`
	Provider  enums.PaymentProvider `json:"provider"`
	AgeHours  int                   `json:"age_hours"`
}
