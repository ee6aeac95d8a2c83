package delivery

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

// ProcessWebhook handles one provider tracking callback. Every accepted
// event appends a tracking row; the delivery's status only moves forward:
// an out-of-order lower-ranked update never overwrites a later one.
func (s *service) ProcessWebhook(ctx context.Context, providerName enums.DeliveryProvider, payload []byte, signature string) error {
	provider, err := s.selector.ByName(providerName)
	if err != nil {
		return err
	}

	if provider.SigningKeyConfigured() {
		if !provider.VerifyWebhook(payload, signature) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature verification failed")
		}
	} else {
		if s.cfg.SignatureRequired {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signing key is not configured")
		}
		warnCtx := s.logg.WithFields(ctx, map[string]any{"provider": providerName.String()})
		s.logg.Warn(warnCtx, "accepting delivery webhook without signature verification")
	}

	event, err := provider.ParseWebhook(payload)
	if err != nil {
		return err
	}

	delivery, err := s.repo.FindDeliveryByTracking(ctx, providerName, event.TrackingNumber)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up delivery")
	}
	if delivery == nil {
		// Unknown shipment: acknowledged so the provider stops retrying,
		// but logged loudly for reconciliation.
		warnCtx := s.logg.WithFields(ctx, map[string]any{
			"provider":        providerName.String(),
			"tracking_number": event.TrackingNumber,
			"raw_status":      event.RawStatus,
		})
		s.logg.Warn(warnCtx, "delivery webhook for unknown shipment")
		return nil
	}

	mapped := provider.MapStatus(event.RawStatus)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row := &models.DeliveryTracking{
			DeliveryID:  delivery.ID,
			Status:      mapped,
			RawStatus:   event.RawStatus,
			Description: event.Description,
			Location:    event.Location,
			OccurredAt:  event.OccurredAt,
			RawPayload:  event.Raw,
		}
		if err := repo.AppendTracking(ctx, row); err != nil {
			return err
		}

		if mapped.Rank() <= delivery.Status.Rank() || delivery.Status.IsTerminal() {
			return nil
		}

		updates := map[string]any{}
		if mapped == enums.DeliveryStatusDelivered {
			at := time.Now()
			if event.OccurredAt != nil {
				at = *event.OccurredAt
			}
			updates["actual_delivery_at"] = at
		}
		ok, err := repo.UpdateDeliveryStatus(ctx, delivery.ID, delivery.Status, mapped, updates)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent webhook advanced the delivery first; the
			// tracking row above still records this event.
			return nil
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryStatusChanged,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Version:       1,
			Data: payloads.DeliveryStatusChangedEvent{
				DeliveryID: delivery.ID,
				OrderID:    delivery.OrderID,
				Provider:   delivery.Provider,
				FromStatus: delivery.Status,
				ToStatus:   mapped,
				ChangedAt:  time.Now(),
			},
		}); err != nil {
			return err
		}
		delivery.Status = mapped
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to process delivery webhook")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"delivery_id": delivery.ID.String(),
		"order_id":    delivery.OrderID.String(),
		"provider":    providerName.String(),
		"raw_status":  event.RawStatus,
		"status":      mapped.String(),
	})
	s.logg.Info(logCtx, "delivery webhook processed")

	// Order-level side effects run after the tracking transaction commits.
	switch {
	case delivery.Status == enums.DeliveryStatusDelivered && mapped == enums.DeliveryStatusDelivered:
		if err := s.orders.MarkDelivered(ctx, delivery.OrderID, &delivery.ID); err != nil {
			return err
		}
	case mapped == enums.DeliveryStatusCancelled, mapped == enums.DeliveryStatusReturned, mapped == enums.DeliveryStatusFailed:
		s.logg.Warn(logCtx, "delivery ended without handoff; order needs operator attention")
	}
	return nil
}
