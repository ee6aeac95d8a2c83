package delivery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/shipbubble"
)

// shipbubbleStatusMap translates Shipbubble's event vocabulary into the
// shared internal status set. Anything unlisted maps to unknown.
var shipbubbleStatusMap = map[string]enums.DeliveryStatus{
	"pending":          enums.DeliveryStatusPending,
	"confirmed":        enums.DeliveryStatusPending,
	"picked_up":        enums.DeliveryStatusPickedUp,
	"in_transit":       enums.DeliveryStatusInTransit,
	"out_for_delivery": enums.DeliveryStatusOutForDelivery,
	"delivered":        enums.DeliveryStatusDelivered,
	"completed":        enums.DeliveryStatusDelivered,
	"cancelled":        enums.DeliveryStatusCancelled,
	"returned":         enums.DeliveryStatusReturned,
	"failed":           enums.DeliveryStatusFailed,
}

// ShipbubbleAdapter serves domestic shipments through the Shipbubble API.
type ShipbubbleAdapter struct {
	client   *shipbubble.Client
	quoteTTL time.Duration
}

// NewShipbubbleAdapter wraps a Shipbubble client. Shipbubble rates carry no
// expiry of their own, so quotes expire after the configured TTL.
func NewShipbubbleAdapter(client *shipbubble.Client, quoteTTL time.Duration) (*ShipbubbleAdapter, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipbubble client is required")
	}
	if quoteTTL <= 0 {
		quoteTTL = 15 * time.Minute
	}
	return &ShipbubbleAdapter{client: client, quoteTTL: quoteTTL}, nil
}

func (a *ShipbubbleAdapter) Name() enums.DeliveryProvider {
	return enums.DeliveryProviderShipbubble
}

func (a *ShipbubbleAdapter) RequestQuotes(ctx context.Context, input QuoteInput) ([]ProviderQuote, error) {
	items := make([]shipbubble.PackageItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, shipbubble.PackageItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Amount:   item.Amount.String(),
			WeightKG: item.WeightKG.String(),
		})
	}

	rates, err := a.client.FetchRates(ctx, shipbubble.RateRequest{
		Sender: shipbubble.Address{
			Name:    input.Pickup.Name,
			Phone:   input.Pickup.Phone,
			Email:   input.Pickup.Email,
			Address: input.Pickup.AddressLine,
		},
		Receiver: shipbubble.Address{
			Name:    input.Dropoff.Name,
			Phone:   input.Dropoff.Phone,
			Email:   input.Dropoff.Email,
			Address: input.Dropoff.AddressLine,
		},
		Items: items,
	})
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(a.quoteTTL)
	quotes := make([]ProviderQuote, 0, len(rates.Rates))
	for _, rate := range rates.Rates {
		fee, err := decimal.NewFromString(rate.Total)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "shipbubble returned an unparseable rate total")
		}
		currency := enums.CurrencyNGN
		if rate.Currency != "" {
			currency = enums.Currency(strings.ToUpper(rate.Currency))
		}
		metadata, err := json.Marshal(quoteMetadata{
			Pickup:       input.Pickup,
			Dropoff:      input.Dropoff,
			Items:        input.Items,
			RequestToken: rates.RequestToken,
			CourierID:    rate.CourierID,
			ServiceCode:  rate.ServiceCode,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode quote metadata")
		}
		courierName := rate.CourierName
		serviceCode := rate.ServiceCode
		quotes = append(quotes, ProviderQuote{
			ProviderQuoteID: rate.CourierID,
			Fee:             fee,
			Currency:        currency,
			CourierName:     &courierName,
			ServiceCode:     &serviceCode,
			ExpiresAt:       expiresAt,
			Metadata:        metadata,
		})
	}
	return quotes, nil
}

func (a *ShipbubbleAdapter) CreateShipment(ctx context.Context, quote *models.DeliveryQuote) (*ShipmentResult, error) {
	var metadata quoteMetadata
	if err := json.Unmarshal(quote.RawPayload, &metadata); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to decode quote metadata")
	}
	if metadata.RequestToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "quote is missing its shipbubble request token")
	}

	shipment, err := a.client.CreateShipment(ctx, shipbubble.ShipmentRequest{
		RequestToken: metadata.RequestToken,
		ServiceCode:  metadata.ServiceCode,
		CourierID:    metadata.CourierID,
	})
	if err != nil {
		return nil, err
	}

	tracking := shipment.TrackingNumber
	if tracking == "" {
		tracking = shipment.OrderID
	}
	return &ShipmentResult{
		TrackingNumber: tracking,
		RawStatus:      shipment.Status,
		TrackingURL:    shipment.TrackingURL,
		Raw:            shipment.Raw,
	}, nil
}

func (a *ShipbubbleAdapter) Track(ctx context.Context, trackingNumber string) (*ShipmentResult, error) {
	shipment, err := a.client.TrackShipment(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return &ShipmentResult{
		TrackingNumber: trackingNumber,
		RawStatus:      shipment.Status,
		TrackingURL:    shipment.TrackingURL,
		Raw:            shipment.Raw,
	}, nil
}

func (a *ShipbubbleAdapter) CancelShipment(ctx context.Context, trackingNumber string) error {
	return a.client.CancelShipment(ctx, trackingNumber)
}

func (a *ShipbubbleAdapter) SigningKeyConfigured() bool {
	return a.client.SigningKeyConfigured()
}

func (a *ShipbubbleAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return a.client.VerifySignature(payload, signature)
}

// shipbubbleWebhook is the body Shipbubble posts on tracking updates.
type shipbubbleWebhook struct {
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	Location       string `json:"location"`
	Timestamp      string `json:"timestamp"`
}

func (a *ShipbubbleAdapter) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var body shipbubbleWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed shipbubble webhook payload")
	}
	tracking := body.TrackingNumber
	if tracking == "" {
		tracking = body.OrderID
	}
	if tracking == "" || body.Status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipbubble webhook is missing tracking or status")
	}

	event := &WebhookEvent{
		TrackingNumber: tracking,
		RawStatus:      body.Status,
		Raw:            json.RawMessage(payload),
	}
	if body.Message != "" {
		event.Description = &body.Message
	}
	if body.Location != "" {
		event.Location = &body.Location
	}
	if body.Timestamp != "" {
		if at, err := time.Parse(time.RFC3339, body.Timestamp); err == nil {
			event.OccurredAt = &at
		}
	}
	return event, nil
}

func (a *ShipbubbleAdapter) MapStatus(raw string) enums.DeliveryStatus {
	if status, ok := shipbubbleStatusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.DeliveryStatusUnknown
}
