package orders

import "github.com/forkline-app/forkline-backend/pkg/enums"

// legalTransitions is the full order state machine. Cancellation is reachable
// from every non-terminal state; refunds only from confirmed or delivered.
var legalTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusNew: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPreparing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusReady,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReady: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether moving from one order status to another is
// allowed by the state machine.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
