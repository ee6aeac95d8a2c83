package enums

import "fmt"

// DeliveryStatus is the shared internal status set every courier provider's
// event vocabulary maps onto.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusCancelled      DeliveryStatus = "cancelled"
	DeliveryStatusReturned       DeliveryStatus = "returned"
	DeliveryStatusFailed         DeliveryStatus = "failed"
	DeliveryStatusUnknown        DeliveryStatus = "unknown"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusPickedUp,
	DeliveryStatusInTransit,
	DeliveryStatusOutForDelivery,
	DeliveryStatusDelivered,
	DeliveryStatusCancelled,
	DeliveryStatusReturned,
	DeliveryStatusFailed,
	DeliveryStatusUnknown,
}

// deliveryStatusRank orders statuses by forward progress. Webhooks may
// arrive out of order; a lower-ranked update never overwrites a
// higher-ranked stored status. Unknown ranks zero so it can never advance
// a delivery on its own.
var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusUnknown:        0,
	DeliveryStatusPending:        1,
	DeliveryStatusPickedUp:       2,
	DeliveryStatusInTransit:      3,
	DeliveryStatusOutForDelivery: 4,
	DeliveryStatusDelivered:      5,
	DeliveryStatusCancelled:      5,
	DeliveryStatusReturned:       5,
	DeliveryStatusFailed:         5,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the delivery has finished, successfully or not.
func (d DeliveryStatus) IsTerminal() bool {
	switch d {
	case DeliveryStatusDelivered, DeliveryStatusCancelled,
		DeliveryStatusReturned, DeliveryStatusFailed:
		return true
	default:
		return false
	}
}

// Rank returns the monotonic progress rank for the status.
func (d DeliveryStatus) Rank() int {
	return deliveryStatusRank[d]
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
