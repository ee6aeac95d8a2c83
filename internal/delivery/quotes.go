package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

// RequestQuotes asks the provider serving the destination country for rates
// and persists them as pending quotes. The provider call happens before any
// transaction is opened.
func (s *service) RequestQuotes(ctx context.Context, input RequestQuotesInput) ([]models.DeliveryQuote, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Country == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination country is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel items are required")
	}

	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Type != enums.OrderTypeDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "pickup orders do not take delivery quotes")
	}

	provider, err := s.selector.ForCountry(input.Country)
	if err != nil {
		return nil, err
	}

	offers, err := provider.RequestQuotes(ctx, QuoteInput{
		OrderID: input.OrderID,
		Pickup:  input.Pickup,
		Dropoff: input.Dropoff,
		Items:   input.Items,
	})
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "provider returned no rates")
	}

	quotes := make([]models.DeliveryQuote, 0, len(offers))
	for _, offer := range offers {
		quotes = append(quotes, models.DeliveryQuote{
			OrderID:         input.OrderID,
			Provider:        provider.Name(),
			Status:          enums.QuoteStatusPending,
			ProviderQuoteID: offer.ProviderQuoteID,
			Fee:             offer.Fee,
			Currency:        offer.Currency,
			CourierName:     offer.CourierName,
			ServiceCode:     offer.ServiceCode,
			ExpiresAt:       offer.ExpiresAt,
			RawPayload:      offer.Metadata,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateQuotes(ctx, quotes)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to persist delivery quotes")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": input.OrderID.String(),
		"provider": provider.Name().String(),
		"quotes":   len(quotes),
	})
	s.logg.Info(logCtx, "delivery quotes fetched")

	return quotes, nil
}

// GetQuote loads a quote, lazily expiring it when its expiry has passed.
func (s *service) GetQuote(ctx context.Context, quoteID uuid.UUID) (*models.DeliveryQuote, error) {
	quote, err := s.repo.FindQuoteByID(ctx, quoteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load quote")
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	return s.lazyExpire(ctx, quote)
}

func (s *service) ListQuotes(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryQuote, error) {
	rows, err := s.repo.ListQuotesByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list quotes")
	}
	for i := range rows {
		updated, err := s.lazyExpire(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		rows[i] = *updated
	}
	return rows, nil
}

// SelectQuote moves a pending, unexpired quote to selected and atomically
// cancels its pending siblings.
func (s *service) SelectQuote(ctx context.Context, quoteID uuid.UUID, actor *outbox.ActorRef) (*models.DeliveryQuote, error) {
	var selected *models.DeliveryQuote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		quote, err := repo.FindQuoteByID(ctx, quoteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load quote")
		}
		if quote == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		if quote.Status != enums.QuoteStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"only pending quotes can be selected").
				WithDetails(map[string]string{"status": quote.Status.String()})
		}
		if !time.Now().Before(quote.ExpiresAt) {
			if _, err := repo.UpdateQuoteStatus(ctx, quote.ID, enums.QuoteStatusPending, enums.QuoteStatusExpired); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to expire quote")
			}
			return pkgerrors.New(pkgerrors.CodeQuoteExpired, "quote has expired")
		}

		ok, err := repo.UpdateQuoteStatus(ctx, quote.ID, enums.QuoteStatusPending, enums.QuoteStatusSelected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to select quote")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "quote was modified concurrently")
		}
		if _, err := repo.CancelSiblingQuotes(ctx, quote.OrderID, quote.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to cancel sibling quotes")
		}

		quote.Status = enums.QuoteStatusSelected
		selected = quote
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"quote_id": selected.ID.String(),
		"order_id": selected.OrderID.String(),
		"provider": selected.Provider.String(),
		"fee":      selected.Fee.String(),
	})
	s.logg.Info(logCtx, "delivery quote selected")

	return selected, nil
}

// ExpireStaleQuotes is the hygiene sweep behind the cron job. Correctness
// does not depend on it: selection re-checks expiry itself.
func (s *service) ExpireStaleQuotes(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListExpiredPendingQuotes(ctx, time.Now(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list stale quotes")
	}

	expired := 0
	for i := range stale {
		quote := stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateQuoteStatus(ctx, quote.ID, enums.QuoteStatusPending, enums.QuoteStatusExpired)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			expired++
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDeliveryQuoteExpired,
				AggregateType: enums.AggregateDelivery,
				AggregateID:   quote.ID,
				Version:       1,
				Data: payloads.DeliveryQuoteExpiredEvent{
					QuoteID:   quote.ID,
					OrderID:   quote.OrderID,
					Provider:  quote.Provider,
					ExpiredAt: quote.ExpiresAt,
				},
			})
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to expire quote")
		}
	}
	return expired, nil
}

// lazyExpire flips a pending quote to expired when read past its expiry.
func (s *service) lazyExpire(ctx context.Context, quote *models.DeliveryQuote) (*models.DeliveryQuote, error) {
	if quote.Status != enums.QuoteStatusPending || time.Now().Before(quote.ExpiresAt) {
		return quote, nil
	}
	if _, err := s.repo.UpdateQuoteStatus(ctx, quote.ID, enums.QuoteStatusPending, enums.QuoteStatusExpired); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to expire quote")
	}
	quote.Status = enums.QuoteStatusExpired
	return quote, nil
}
