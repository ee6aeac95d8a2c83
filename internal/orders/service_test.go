package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

type stubOrdersRepo struct {
	orders  map[uuid.UUID]*models.Order
	updates map[string]any
}

func newStubOrdersRepo(rows ...*models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{orders: make(map[uuid.UUID]*models.Order)}
	for _, row := range rows {
		repo.orders[row.ID] = row
	}
	return repo
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders[orderID], nil
}

func (s *stubOrdersRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var rows []models.Order
	for _, order := range s.orders {
		if order.CustomerID == customerID {
			rows = append(rows, *order)
		}
	}
	return rows, nil
}

func (s *stubOrdersRepo) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var rows []models.Order
	for _, order := range s.orders {
		if order.VendorID == vendorID {
			rows = append(rows, *order)
		}
	}
	return rows, nil
}

func (s *stubOrdersRepo) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	s.updates = updates
	return true, nil
}

func (s *stubOrdersRepo) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	s.updates = updates
	if order, ok := s.orders[orderID]; ok {
		if v, present := updates["cancel_requested"]; present {
			order.CancelRequested = v.(bool)
		}
		if v, present := updates["manual_delivery"]; present {
			order.ManualDelivery = v.(bool)
		}
		if v, present := updates["payment_status"]; present {
			order.PaymentStatus = v.(enums.PaymentStatus)
		}
	}
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type capturedEvents struct {
	events []outbox.DomainEvent
}

func (c *capturedEvents) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.EventType)
	}
	return out
}

func newTestService(t *testing.T, repo Repository) (Service, *capturedEvents) {
	t.Helper()
	emitter := &capturedEvents{}
	cfg := config.PaymentsConfig{ServiceFeePercent: "5", CommissionPercent: "10"}
	svc, err := NewService(repo, stubTxRunner{}, emitter, cfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, emitter
}

func deliveryOrder(status enums.OrderStatus, paymentStatus enums.PaymentStatus) *models.Order {
	addr := uuid.New()
	return &models.Order{
		ID:                uuid.New(),
		CustomerID:        uuid.New(),
		VendorID:          uuid.New(),
		DeliveryAddressID: &addr,
		Type:              enums.OrderTypeDelivery,
		Status:            status,
		PaymentMethod:     enums.PaymentMethodWallet,
		PaymentStatus:     paymentStatus,
		Currency:          enums.CurrencyNGN,
		TotalAmount:       decimal.RequireFromString("5750"),
	}
}

func TestCreateComputesTotals(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, emitter := newTestService(t, repo)
	addr := uuid.New()

	order, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID:        uuid.New(),
		VendorID:          uuid.New(),
		Type:              enums.OrderTypeDelivery,
		PaymentMethod:     enums.PaymentMethodWallet,
		DeliveryAddressID: &addr,
		DeliveryFee:       decimal.RequireFromString("500"),
		Items: []CreateOrderItemInput{
			{MenuItemID: uuid.New(), Name: "Jollof Rice", Quantity: 2, UnitPrice: decimal.RequireFromString("1500")},
			{MenuItemID: uuid.New(), Name: "Suya Platter", Quantity: 1, UnitPrice: decimal.RequireFromString("2000")},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.Status != enums.OrderStatusNew {
		t.Fatalf("status = %s, want new", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("5750")) {
		t.Fatalf("total = %s, want 5750", order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("events = %v, want [order_created]", emitter.types())
	}
}

func TestCreateValidation(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, _ := newTestService(t, repo)
	addr := uuid.New()
	base := CreateOrderInput{
		CustomerID:        uuid.New(),
		VendorID:          uuid.New(),
		Type:              enums.OrderTypeDelivery,
		PaymentMethod:     enums.PaymentMethodWallet,
		DeliveryAddressID: &addr,
		Items: []CreateOrderItemInput{
			{MenuItemID: uuid.New(), Name: "Item", Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
		},
	}

	noItems := base
	noItems.Items = nil
	noAddress := base
	noAddress.DeliveryAddressID = nil
	badMethod := base
	badMethod.PaymentMethod = "cheque"

	for name, input := range map[string]CreateOrderInput{
		"no items":            noItems,
		"delivery no address": noAddress,
		"bad payment method":  badMethod,
	} {
		if _, err := svc.Create(context.Background(), input); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Errorf("%s: expected VALIDATION_ERROR, got %v", name, err)
		}
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusNew, enums.PaymentStatusPending)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		To:      enums.OrderStatusPreparing,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if order.Status != enums.OrderStatusNew {
		t.Fatalf("status mutated to %s on rejected transition", order.Status)
	}
}

func TestUpdateStatusForwardFlow(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusOutForDelivery,
	} {
		updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, To: next})
		if err != nil {
			t.Fatalf("UpdateStatus %s: %v", next, err)
		}
		if updated.Status != next {
			t.Fatalf("status = %s, want %s", updated.Status, next)
		}
	}
	if len(emitter.events) != 3 {
		t.Fatalf("events = %d, want 3 state changes", len(emitter.events))
	}
}

func TestCancelRequiresReasonAndActor(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusNew, enums.PaymentStatusPending)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	_, err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, ActorKind: enums.CancelActorCustomer})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for missing reason, got %v", err)
	}

	_, err = svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "changed my mind"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for missing actor, got %v", err)
	}
}

func TestCancelWhilePaymentProcessingDefers(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusNew, enums.PaymentStatusProcessing)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)

	updated, err := svc.Cancel(context.Background(), CancelInput{
		OrderID:   order.ID,
		Reason:    "customer request",
		ActorKind: enums.CancelActorCustomer,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !updated.CancelRequested {
		t.Fatal("expected cancel_requested marker")
	}
	if updated.Status != enums.OrderStatusNew {
		t.Fatalf("status = %s, want new (unchanged)", updated.Status)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("deferred cancel must not emit, got %v", emitter.types())
	}
}

func TestCancelTerminalOrderFails(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusDelivered, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	_, err := svc.Cancel(context.Background(), CancelInput{
		OrderID:   order.ID,
		Reason:    "too late",
		ActorKind: enums.CancelActorCustomer,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestCancelEmitsCancelledEvent(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)

	updated, err := svc.Cancel(context.Background(), CancelInput{
		OrderID:   order.ID,
		Reason:    "vendor out of stock",
		ActorKind: enums.CancelActorVendor,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}
	var sawCancelled bool
	for _, event := range emitter.events {
		if event.EventType == enums.EventOrderCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Fatalf("expected order_cancelled event, got %v", emitter.types())
	}
}

func TestConfirmTxAdvancesOrder(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusNew, enums.PaymentStatusProcessing)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)

	err := svc.ConfirmTx(context.Background(), &gorm.DB{}, order.ID, uuid.New(), nil)
	if err != nil {
		t.Fatalf("ConfirmTx: %v", err)
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", order.Status)
	}
	types := emitter.types()
	if len(types) != 2 || types[1] != enums.EventOrderConfirmed {
		t.Fatalf("events = %v, want state change + order_confirmed", types)
	}
}

func TestConfirmTxRejectsNonNewOrder(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusCancelled, enums.PaymentStatusFailed)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	err := svc.ConfirmTx(context.Background(), &gorm.DB{}, order.ID, uuid.New(), nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestMarkDeliveredWalksForward(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)
	deliveryID := uuid.New()

	if err := svc.MarkDelivered(context.Background(), order.ID, &deliveryID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if order.Status != enums.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", order.Status)
	}
	types := emitter.types()
	if types[len(types)-1] != enums.EventOrderDelivered {
		t.Fatalf("expected trailing order_delivered event, got %v", types)
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusDelivered, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, emitter := newTestService(t, repo)

	if err := svc.MarkDelivered(context.Background(), order.ID, nil); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("repeat delivered must be a no-op, got %v", emitter.types())
	}
}

func TestMarkDeliveredRejectsUnpaidOrder(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusNew, enums.PaymentStatusPending)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	err := svc.MarkDelivered(context.Background(), order.ID, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestFlagManualDelivery(t *testing.T) {
	order := deliveryOrder(enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	repo := newStubOrdersRepo(order)
	svc, _ := newTestService(t, repo)

	if err := svc.FlagManualDelivery(context.Background(), order.ID, "provider rejected shipment"); err != nil {
		t.Fatalf("FlagManualDelivery: %v", err)
	}
	if !order.ManualDelivery {
		t.Fatal("expected manual_delivery flag")
	}
}
