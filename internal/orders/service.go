package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the order aggregate and is the single writer of order status.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	ConfirmTx(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, actor *outbox.ActorRef) error
	MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) error
	SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID, deliveryID *uuid.UUID) error
	AttachDelivery(ctx context.Context, tx *gorm.DB, orderID, quoteID, deliveryID uuid.UUID) error
	FlagManualDelivery(ctx context.Context, orderID uuid.UUID, reason string) error
}

type service struct {
	repo              Repository
	tx                txRunner
	outbox            outboxPublisher
	logg              *logger.Logger
	serviceFeePercent decimal.Decimal
	commissionPercent decimal.Decimal
}

// NewService wires the order state machine with its dependencies. Fee
// percentages come from payment configuration and are parsed once here.
func NewService(repo Repository, tx txRunner, emitter outboxPublisher, cfg config.PaymentsConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	serviceFee, err := decimal.NewFromString(cfg.ServiceFeePercent)
	if err != nil {
		return nil, fmt.Errorf("invalid service fee percent %q: %w", cfg.ServiceFeePercent, err)
	}
	commission, err := decimal.NewFromString(cfg.CommissionPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid commission percent %q: %w", cfg.CommissionPercent, err)
	}
	return &service{
		repo:              repo,
		tx:                tx,
		outbox:            emitter,
		logg:              logg,
		serviceFeePercent: serviceFee,
		commissionPercent: commission,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil || input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and vendor are required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Type == enums.OrderTypeDelivery && input.DeliveryAddressID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery orders require a delivery address")
	}
	if input.Currency == "" {
		input.Currency = enums.CurrencyNGN
	}

	lines := make([]TotalsLine, 0, len(input.Items))
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if !item.UnitPrice.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item unit price must be positive")
		}
		lines = append(lines, TotalsLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
		items = append(items, models.OrderItem{
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			Customizations: item.Customizations,
		})
	}

	totals := ComputeTotals(TotalsInput{
		Lines:             lines,
		DeliveryFee:       input.DeliveryFee,
		DiscountAmount:    input.DiscountAmount,
		ServiceFeePercent: s.serviceFeePercent,
		CommissionPercent: s.commissionPercent,
		Currency:          input.Currency,
	})

	order := &models.Order{
		CustomerID:        input.CustomerID,
		VendorID:          input.VendorID,
		DeliveryAddressID: input.DeliveryAddressID,
		Type:              input.Type,
		Status:            enums.OrderStatusNew,
		PaymentMethod:     input.PaymentMethod,
		PaymentStatus:     enums.PaymentStatusPending,
		Currency:          input.Currency,
		Subtotal:          totals.Subtotal,
		DeliveryFee:       totals.DeliveryFee,
		ServiceFee:        totals.ServiceFee,
		DiscountAmount:    totals.DiscountAmount,
		CommissionAmount:  totals.CommissionAmount,
		TotalAmount:       totals.TotalAmount,
		DeliveryQuoteID:   input.DeliveryQuoteID,
		Items:             items,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create order")
		}
		order = created
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				VendorID:   order.VendorID,
				OrderType:  order.Type,
				Currency:   order.Currency,
				Total:      order.TotalAmount,
				Status:     order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"customer_id":  order.CustomerID.String(),
		"vendor_id":    order.VendorID.String(),
		"total_amount": order.TotalAmount.String(),
	})
	s.logg.Info(logCtx, "order created")

	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	rows, err := s.repo.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list orders")
	}
	return rows, nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.Order, error) {
	rows, err := s.repo.ListByVendor(ctx, vendorID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list orders")
	}
	return rows, nil
}

// UpdateStatus applies a vendor/ops driven forward transition. Confirmation,
// cancellation and refunds have their own entry points.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	switch input.To {
	case enums.OrderStatusPreparing, enums.OrderStatusReady, enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set directly", input.To))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !CanTransition(order.Status, input.To) {
			return invalidTransition(order.Status, input.To)
		}

		updates := map[string]any{}
		now := time.Now()
		switch input.To {
		case enums.OrderStatusReady:
			updates["ready_at"] = now
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, input.To, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order status")
		}
		if !ok {
			return invalidTransition(order.Status, input.To)
		}

		if err := s.emitStateChanged(ctx, tx, order.ID, order.Status, input.To, input.Actor); err != nil {
			return err
		}
		if input.To == enums.OrderStatusDelivered {
			if err := s.emitDelivered(ctx, tx, order, input.Actor, now); err != nil {
				return err
			}
		}
		order.Status = input.To
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel moves an order to cancelled. If a payment is still processing the
// order is only marked cancel-requested; the payment confirmation path
// finishes the cancellation once the provider resolves.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	if !input.ActorKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation actor is required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status.IsTerminal() {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		if order.PaymentStatus == enums.PaymentStatusProcessing {
			err := repo.Update(ctx, order.ID, map[string]any{
				"cancel_requested": true,
				"cancel_reason":    input.Reason,
				"cancel_actor":     input.ActorKind,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark cancel requested")
			}
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"actor":    input.ActorKind.String(),
			})
			s.logg.Info(logCtx, "cancel deferred: payment still processing")
			order.CancelRequested = true
			order.CancelReason = &input.Reason
			actorKind := input.ActorKind
			order.CancelActor = &actorKind
			updated = order
			return nil
		}

		now := time.Now()
		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, map[string]any{
			"cancel_reason": input.Reason,
			"cancel_actor":  input.ActorKind,
			"cancelled_at":  now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to cancel order")
		}
		if !ok {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		if err := s.emitStateChanged(ctx, tx, order.ID, order.Status, enums.OrderStatusCancelled, input.Actor); err != nil {
			return err
		}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			Version:       1,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CancelledBy: input.ActorKind,
				Reason:      input.Reason,
				Refunded:    order.PaymentStatus == enums.PaymentStatusCompleted,
				CancelledAt: now,
			},
		})
		if err != nil {
			return err
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelReason = &input.Reason
		actorKind := input.ActorKind
		order.CancelActor = &actorKind
		order.CancelledAt = &now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmTx advances a paid order from new to confirmed inside the payment's
// transaction, so a payment never settles against an unconfirmable order.
func (s *service) ConfirmTx(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, actor *outbox.ActorRef) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !CanTransition(order.Status, enums.OrderStatusConfirmed) {
		return invalidTransition(order.Status, enums.OrderStatusConfirmed)
	}

	now := time.Now()
	ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusConfirmed, map[string]any{
		"confirmed_at":   now,
		"payment_status": enums.PaymentStatusCompleted,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to confirm order")
	}
	if !ok {
		return invalidTransition(order.Status, enums.OrderStatusConfirmed)
	}

	if err := s.emitStateChanged(ctx, tx, order.ID, order.Status, enums.OrderStatusConfirmed, actor); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.OrderConfirmedEvent{
			OrderID:     order.ID,
			PaymentID:   paymentID,
			ConfirmedAt: now,
		},
	})
}

// MarkRefundedTx moves a confirmed or delivered order to refunded inside the
// refund's transaction.
func (s *service) MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !CanTransition(order.Status, enums.OrderStatusRefunded) {
		return invalidTransition(order.Status, enums.OrderStatusRefunded)
	}
	ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusRefunded, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark order refunded")
	}
	if !ok {
		return invalidTransition(order.Status, enums.OrderStatusRefunded)
	}
	return s.emitStateChanged(ctx, tx, order.ID, order.Status, enums.OrderStatusRefunded, actor)
}

func (s *service) SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	err := s.repo.WithTx(tx).Update(ctx, orderID, map[string]any{"payment_status": status})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order payment status")
	}
	return nil
}

// MarkDelivered is driven by delivery webhooks. Orders that skipped the
// out_for_delivery step are walked forward through it so the state machine
// stays strictly sequential.
func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID, deliveryID *uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status == enums.OrderStatusDelivered {
			return nil
		}

		now := time.Now()
		current := order.Status
		for _, step := range deliveredPath(current) {
			updates := map[string]any{}
			if step == enums.OrderStatusDelivered {
				updates["delivered_at"] = now
			}
			ok, err := repo.UpdateStatus(ctx, order.ID, current, step, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order status")
			}
			if !ok {
				return invalidTransition(current, step)
			}
			if err := s.emitStateChanged(ctx, tx, order.ID, current, step, nil); err != nil {
				return err
			}
			current = step
		}
		if current != enums.OrderStatusDelivered {
			return invalidTransition(order.Status, enums.OrderStatusDelivered)
		}
		order.DeliveryID = deliveryID
		return s.emitDelivered(ctx, tx, order, nil, now)
	})
}

// deliveredPath returns the remaining forward steps from the current status
// to delivered, or nil when delivered is unreachable.
func deliveredPath(from enums.OrderStatus) []enums.OrderStatus {
	full := []enums.OrderStatus{
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
	}
	if from == enums.OrderStatusConfirmed {
		return full
	}
	for i, step := range full {
		if step == from {
			return full[i+1:]
		}
	}
	return nil
}

func (s *service) AttachDelivery(ctx context.Context, tx *gorm.DB, orderID, quoteID, deliveryID uuid.UUID) error {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	err := repo.Update(ctx, orderID, map[string]any{
		"delivery_quote_id": quoteID,
		"delivery_id":       deliveryID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to attach delivery to order")
	}
	return nil
}

// FlagManualDelivery marks an order for manual delivery arrangement after a
// failed shipment booking. The order itself is not blocked.
func (s *service) FlagManualDelivery(ctx context.Context, orderID uuid.UUID, reason string) error {
	if err := s.repo.Update(ctx, orderID, map[string]any{"manual_delivery": true}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to flag manual delivery")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"reason":   reason,
	})
	s.logg.Warn(logCtx, "order flagged for manual delivery")
	return nil
}

func (s *service) emitStateChanged(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor *outbox.ActorRef) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Version:       1,
		Data: payloads.OrderStateChangedEvent{
			OrderID:    orderID,
			FromStatus: from,
			ToStatus:   to,
			ChangedAt:  time.Now(),
		},
	})
}

func (s *service) emitDelivered(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.OrderDeliveredEvent{
			OrderID:     order.ID,
			DeliveryID:  order.DeliveryID,
			DeliveredAt: at,
		},
	})
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invalid transition from %s to %s", from, to)).
		WithDetails(map[string]string{
			"from": from.String(),
			"to":   to.String(),
		})
}
