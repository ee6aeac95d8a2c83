package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregatePayment  OutboxAggregateType = "payment"
	AggregateDelivery OutboxAggregateType = "delivery"
	AggregateWallet   OutboxAggregateType = "wallet"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateDelivery,
	AggregateWallet,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated            OutboxEventType = "order_created"
	EventOrderConfirmed          OutboxEventType = "order_confirmed"
	EventOrderStateChanged       OutboxEventType = "order_state_changed"
	EventOrderCancelled          OutboxEventType = "order_cancelled"
	EventOrderDelivered          OutboxEventType = "order_delivered"
	EventPaymentCompleted        OutboxEventType = "payment_completed"
	EventPaymentFailed           OutboxEventType = "payment_failed"
	EventPaymentRefunded         OutboxEventType = "payment_refunded"
	EventWalletCredited          OutboxEventType = "wallet_credited"
	EventWalletDebited           OutboxEventType = "wallet_debited"
	EventWalletRepairApplied     OutboxEventType = "wallet_repair_applied"
	EventDeliveryCreated         OutboxEventType = "delivery_created"
	EventDeliveryStatusChanged   OutboxEventType = "delivery_status_changed"
	EventDeliveryCreationFailed  OutboxEventType = "delivery_creation_failed"
	EventDeliveryQuoteExpired    OutboxEventType = "delivery_quote_expired"
	EventPaymentAttemptExpired   OutboxEventType = "payment_attempt_expired"
	EventWalletBalanceDriftFound OutboxEventType = "wallet_balance_drift_found"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderStateChanged,
	EventOrderCancelled,
	EventOrderDelivered,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventWalletCredited,
	EventWalletDebited,
	EventWalletRepairApplied,
	EventDeliveryCreated,
	EventDeliveryStatusChanged,
	EventDeliveryCreationFailed,
	EventDeliveryQuoteExpired,
	EventPaymentAttemptExpired,
	EventWalletBalanceDriftFound,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
