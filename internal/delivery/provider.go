package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Address is the snapshot of one end of a shipment, captured at quote time.
type Address struct {
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email,omitempty"`
	AddressLine string  `json:"address_line"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// ParcelItem is one manifest line of the parcel.
type ParcelItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	WeightKG decimal.Decimal `json:"weight_kg"`
}

// QuoteInput asks a provider to price a shipment between two addresses.
type QuoteInput struct {
	OrderID uuid.UUID
	Pickup  Address
	Dropoff Address
	Items   []ParcelItem
}

// ProviderQuote is one priced offer returned by an adapter. Metadata carries
// whatever the provider needs later to book the shipment.
type ProviderQuote struct {
	ProviderQuoteID string
	Fee             decimal.Decimal
	Currency        enums.Currency
	CourierName     *string
	ServiceCode     *string
	ExpiresAt       time.Time
	Metadata        json.RawMessage
}

// ShipmentResult is a booked or tracked shipment in provider terms.
type ShipmentResult struct {
	TrackingNumber string
	RawStatus      string
	TrackingURL    string
	Raw            json.RawMessage
}

// WebhookEvent is one provider webhook normalized enough to locate the
// delivery; status mapping happens separately through MapStatus.
type WebhookEvent struct {
	TrackingNumber string
	RawStatus      string
	Description    *string
	Location       *string
	OccurredAt     *time.Time
	Raw            json.RawMessage
}

// Provider is the capability contract every courier adapter implements.
type Provider interface {
	Name() enums.DeliveryProvider
	RequestQuotes(ctx context.Context, input QuoteInput) ([]ProviderQuote, error)
	CreateShipment(ctx context.Context, quote *models.DeliveryQuote) (*ShipmentResult, error)
	Track(ctx context.Context, trackingNumber string) (*ShipmentResult, error)
	CancelShipment(ctx context.Context, trackingNumber string) error
	SigningKeyConfigured() bool
	VerifyWebhook(payload []byte, signature string) bool
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	MapStatus(raw string) enums.DeliveryStatus
}

// quoteMetadata is the provider-agnostic blob stored in a quote's raw
// payload. It keeps everything needed to book the shipment later without
// re-asking the caller for addresses.
type quoteMetadata struct {
	Pickup  Address      `json:"pickup"`
	Dropoff Address      `json:"dropoff"`
	Items   []ParcelItem `json:"items"`

	// Shipbubble booking handles.
	RequestToken string `json:"request_token,omitempty"`
	CourierID    string `json:"courier_id,omitempty"`
	ServiceCode  string `json:"service_code,omitempty"`
}
