package delivery

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

// CreateShipmentForOrder books the selected quote once an order is
// confirmed. The provider call happens outside any transaction. A booking
// failure never blocks the order: it is flagged for manual delivery
// arrangement instead.
func (s *service) CreateShipmentForOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != enums.OrderTypeDelivery {
		return nil, nil
	}
	if order.DeliveryID != nil {
		delivery, err := s.repo.FindDeliveryByID(ctx, *order.DeliveryID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load existing delivery")
		}
		return delivery, nil
	}

	quote, err := s.repo.FindSelectedQuote(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load selected quote")
	}
	if quote == nil {
		return nil, s.manualFallback(ctx, order, nil, "no selected delivery quote")
	}

	provider, err := s.selector.ByName(quote.Provider)
	if err != nil {
		return nil, s.manualFallback(ctx, order, quote, err.Error())
	}

	shipment, err := provider.CreateShipment(ctx, quote)
	if err != nil {
		return nil, s.manualFallback(ctx, order, quote, err.Error())
	}

	var metadata quoteMetadata
	_ = json.Unmarshal(quote.RawPayload, &metadata)
	origin, _ := json.Marshal(metadata.Pickup)
	destination, _ := json.Marshal(metadata.Dropoff)

	delivery := &models.Delivery{
		OrderID:             order.ID,
		QuoteID:             &quote.ID,
		Provider:            quote.Provider,
		TrackingNumber:      shipment.TrackingNumber,
		Status:              enums.DeliveryStatusPending,
		Cost:                quote.Fee,
		Currency:            quote.Currency,
		CourierName:         quote.CourierName,
		OriginSnapshot:      origin,
		DestinationSnapshot: destination,
		RawPayload:          shipment.Raw,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.CreateDelivery(ctx, delivery)
		if err != nil {
			return err
		}
		delivery = created

		ok, err := repo.UpdateQuoteStatus(ctx, quote.ID, enums.QuoteStatusSelected, enums.QuoteStatusUsed)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "quote is no longer selected")
		}

		if err := s.orders.AttachDelivery(ctx, tx, order.ID, quote.ID, delivery.ID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryCreated,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Version:       1,
			Data: payloads.DeliveryCreatedEvent{
				DeliveryID:     delivery.ID,
				OrderID:        order.ID,
				Provider:       delivery.Provider,
				TrackingNumber: delivery.TrackingNumber,
				Fee:            delivery.Cost,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to persist delivery")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        order.ID.String(),
		"delivery_id":     delivery.ID.String(),
		"provider":        delivery.Provider.String(),
		"tracking_number": delivery.TrackingNumber,
	})
	s.logg.Info(logCtx, "delivery shipment created")

	return delivery, nil
}

// manualFallback flags the order for manual delivery arrangement and emits
// the creation-failure event. It returns nil so callers treat the booking
// failure as handled rather than as an order-blocking error.
func (s *service) manualFallback(ctx context.Context, order *models.Order, quote *models.DeliveryQuote, reason string) error {
	if err := s.orders.FlagManualDelivery(ctx, order.ID, reason); err != nil {
		return err
	}

	event := payloads.DeliveryCreationFailedEvent{
		OrderID: order.ID,
		Reason:  reason,
	}
	if quote != nil {
		event.QuoteID = quote.ID
		event.Provider = quote.Provider
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryCreationFailed,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   order.ID,
			Version:       1,
			Data:          event,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record delivery creation failure")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"reason":   reason,
	})
	s.logg.Warn(logCtx, "shipment booking failed; order flagged for manual delivery")
	return nil
}
