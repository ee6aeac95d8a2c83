package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// DeliveryQuote is a priced offer from one provider for one order. At most
// one quote per order is selected or used at a time; quotes past expires_at
// can no longer be selected.
type DeliveryQuote struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null"`
	Provider        enums.DeliveryProvider `gorm:"column:provider;type:delivery_provider;not null"`
	Status          enums.QuoteStatus      `gorm:"column:status;type:quote_status;not null;default:'pending'"`
	ProviderQuoteID string                 `gorm:"column:provider_quote_id;not null"`
	Fee             decimal.Decimal        `gorm:"column:fee;type:numeric(20,8);not null"`
	Currency        enums.Currency         `gorm:"column:currency;type:text;not null;default:'NGN'"`
	CourierName     *string                `gorm:"column:courier_name"`
	ServiceCode     *string                `gorm:"column:service_code"`
	ExpiresAt       time.Time              `gorm:"column:expires_at;not null"`
	RawPayload      json.RawMessage        `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// Delivery is the accepted shipment for an order. Status moves
// monotonically toward a terminal value, driven by provider webhooks.
type Delivery struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID              `gorm:"column:order_id;type:uuid;not null"`
	QuoteID             *uuid.UUID             `gorm:"column:quote_id;type:uuid"`
	Provider            enums.DeliveryProvider `gorm:"column:provider;type:delivery_provider;not null"`
	TrackingNumber      string                 `gorm:"column:tracking_number;not null"`
	Status              enums.DeliveryStatus   `gorm:"column:status;type:delivery_status;not null;default:'pending'"`
	Cost                decimal.Decimal        `gorm:"column:cost;type:numeric(20,8);not null"`
	Currency            enums.Currency         `gorm:"column:currency;type:text;not null;default:'NGN'"`
	CourierName         *string                `gorm:"column:courier_name"`
	CourierPhone        *string                `gorm:"column:courier_phone"`
	OriginSnapshot      json.RawMessage        `gorm:"column:origin_snapshot;type:jsonb"`
	DestinationSnapshot json.RawMessage        `gorm:"column:destination_snapshot;type:jsonb"`
	EstimatedDeliveryAt *time.Time             `gorm:"column:estimated_delivery_at"`
	ActualDeliveryAt    *time.Time             `gorm:"column:actual_delivery_at"`
	RawPayload          json.RawMessage        `gorm:"column:raw_payload;type:jsonb"`
	Tracking            []DeliveryTracking     `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// DeliveryTracking is an append-only event log per delivery. Rows are never
// mutated; each accepted webhook appends one.
type DeliveryTracking struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeliveryID  uuid.UUID            `gorm:"column:delivery_id;type:uuid;not null"`
	Status      enums.DeliveryStatus `gorm:"column:status;type:delivery_status;not null"`
	RawStatus   string               `gorm:"column:raw_status;not null"`
	Description *string              `gorm:"column:description"`
	Location    *string              `gorm:"column:location"`
	OccurredAt  *time.Time           `gorm:"column:occurred_at"`
	RawPayload  json.RawMessage      `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}
