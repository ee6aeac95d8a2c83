package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/uberdirect"
)

// uberDirectStatusMap translates Uber Direct's event vocabulary into the
// shared internal status set. Anything unlisted maps to unknown.
var uberDirectStatusMap = map[string]enums.DeliveryStatus{
	"pending":         enums.DeliveryStatusPending,
	"pickup":          enums.DeliveryStatusPending,
	"pickup_complete": enums.DeliveryStatusPickedUp,
	"ongoing":         enums.DeliveryStatusInTransit,
	"dropoff":         enums.DeliveryStatusOutForDelivery,
	"delivered":       enums.DeliveryStatusDelivered,
	"canceled":        enums.DeliveryStatusCancelled,
	"returned":        enums.DeliveryStatusReturned,
}

// UberDirectAdapter serves international shipments through Uber Direct.
type UberDirectAdapter struct {
	client *uberdirect.Client
}

// NewUberDirectAdapter wraps an Uber Direct client.
func NewUberDirectAdapter(client *uberdirect.Client) (*UberDirectAdapter, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "uber direct client is required")
	}
	return &UberDirectAdapter{client: client}, nil
}

func (a *UberDirectAdapter) Name() enums.DeliveryProvider {
	return enums.DeliveryProviderUberDirect
}

func (a *UberDirectAdapter) RequestQuotes(ctx context.Context, input QuoteInput) ([]ProviderQuote, error) {
	quote, err := a.client.CreateQuote(ctx, uberdirect.QuoteRequest{
		PickupAddress:  input.Pickup.AddressLine,
		DropoffAddress: input.Dropoff.AddressLine,
	})
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(quoteMetadata{
		Pickup:  input.Pickup,
		Dropoff: input.Dropoff,
		Items:   input.Items,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode quote metadata")
	}

	currency := enums.Currency(strings.ToUpper(quote.Currency))
	if quote.Currency == "" {
		currency = enums.CurrencyUSD
	}
	expiresAt := quote.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(15 * time.Minute)
	}
	// Uber Direct prices in minor units.
	fee := decimal.NewFromInt(quote.Fee).Div(decimal.NewFromInt(100))

	return []ProviderQuote{{
		ProviderQuoteID: quote.ID,
		Fee:             fee,
		Currency:        currency,
		ExpiresAt:       expiresAt,
		Metadata:        metadata,
	}}, nil
}

func (a *UberDirectAdapter) CreateShipment(ctx context.Context, quote *models.DeliveryQuote) (*ShipmentResult, error) {
	var metadata quoteMetadata
	if err := json.Unmarshal(quote.RawPayload, &metadata); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to decode quote metadata")
	}

	items := make([]uberdirect.ManifestItem, 0, len(metadata.Items))
	for _, item := range metadata.Items {
		items = append(items, uberdirect.ManifestItem{Name: item.Name, Quantity: item.Quantity})
	}

	booked, err := a.client.CreateDelivery(ctx, uberdirect.DeliveryRequest{
		QuoteID:          quote.ProviderQuoteID,
		PickupName:       metadata.Pickup.Name,
		PickupAddress:    metadata.Pickup.AddressLine,
		PickupPhone:      metadata.Pickup.Phone,
		DropoffName:      metadata.Dropoff.Name,
		DropoffAddress:   metadata.Dropoff.AddressLine,
		DropoffPhone:     metadata.Dropoff.Phone,
		ManifestItems:    items,
		ExternalOrderRef: quote.OrderID.String(),
	})
	if err != nil {
		return nil, err
	}

	return &ShipmentResult{
		TrackingNumber: booked.ID,
		RawStatus:      booked.Status,
		TrackingURL:    booked.TrackingURL,
		Raw:            booked.Raw,
	}, nil
}

func (a *UberDirectAdapter) Track(ctx context.Context, trackingNumber string) (*ShipmentResult, error) {
	job, err := a.client.GetDelivery(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return &ShipmentResult{
		TrackingNumber: job.ID,
		RawStatus:      job.Status,
		TrackingURL:    job.TrackingURL,
		Raw:            job.Raw,
	}, nil
}

func (a *UberDirectAdapter) CancelShipment(ctx context.Context, trackingNumber string) error {
	return a.client.CancelDelivery(ctx, trackingNumber)
}

func (a *UberDirectAdapter) SigningKeyConfigured() bool {
	return a.client.SigningKeyConfigured()
}

func (a *UberDirectAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return a.client.VerifySignature(payload, signature)
}

// uberDirectWebhook is the event envelope Uber Direct posts.
type uberDirectWebhook struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Created string `json:"created"`
	Data    struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (a *UberDirectAdapter) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var body uberDirectWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed uber direct webhook payload")
	}
	status := body.Data.Status
	if status == "" {
		status = body.Status
	}
	if body.Data.ID == "" || status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uber direct webhook is missing delivery id or status")
	}

	event := &WebhookEvent{
		TrackingNumber: body.Data.ID,
		RawStatus:      status,
		Raw:            json.RawMessage(payload),
	}
	if body.Kind != "" {
		description := fmt.Sprintf("uber direct event %s", body.Kind)
		event.Description = &description
	}
	if body.Created != "" {
		if at, err := time.Parse(time.RFC3339, body.Created); err == nil {
			event.OccurredAt = &at
		}
	}
	return event, nil
}

func (a *UberDirectAdapter) MapStatus(raw string) enums.DeliveryStatus {
	if status, ok := uberDirectStatusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.DeliveryStatusUnknown
}
