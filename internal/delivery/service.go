package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderStateMachine is the slice of the orders service the delivery side
// needs: attaching shipments, flagging manual delivery and closing orders.
type orderStateMachine interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, deliveryID *uuid.UUID) error
	AttachDelivery(ctx context.Context, tx *gorm.DB, orderID, quoteID, deliveryID uuid.UUID) error
	FlagManualDelivery(ctx context.Context, orderID uuid.UUID, reason string) error
}

// Service owns delivery quotes, shipments and webhook-driven tracking.
type Service interface {
	RequestQuotes(ctx context.Context, input RequestQuotesInput) ([]models.DeliveryQuote, error)
	GetQuote(ctx context.Context, quoteID uuid.UUID) (*models.DeliveryQuote, error)
	ListQuotes(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryQuote, error)
	SelectQuote(ctx context.Context, quoteID uuid.UUID, actor *outbox.ActorRef) (*models.DeliveryQuote, error)
	CreateShipmentForOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
	ProcessWebhook(ctx context.Context, provider enums.DeliveryProvider, payload []byte, signature string) error
	ExpireStaleQuotes(ctx context.Context, limit int) (int, error)
	AvailableProviders() []enums.DeliveryProvider
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	selector *Selector
	orders   orderStateMachine
	cfg      config.DeliveryConfig
	logg     *logger.Logger
}

// RequestQuotesInput asks for rates on an order to a destination country.
type RequestQuotesInput struct {
	OrderID uuid.UUID
	Country string
	Pickup  Address
	Dropoff Address
	Items   []ParcelItem
}

// NewService wires the delivery service.
func NewService(
	repo Repository,
	tx txRunner,
	emitter outboxPublisher,
	selector *Selector,
	orders orderStateMachine,
	cfg config.DeliveryConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("provider selector is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order state machine is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   emitter,
		selector: selector,
		orders:   orders,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

func (s *service) GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repo.FindDeliveryByID(ctx, deliveryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load delivery")
	}
	if delivery == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
	}
	return delivery, nil
}

func (s *service) AvailableProviders() []enums.DeliveryProvider {
	return s.selector.Available()
}
