package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Payment is one payment attempt. OrderID is nil for wallet-funding
// payments. Rows are retained indefinitely for audit and status moves
// monotonically toward a terminal value.
type Payment struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	CustomerID         uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	Method             enums.PaymentMethod   `gorm:"column:method;type:payment_method;not null"`
	Provider           enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null"`
	Status             enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Amount             decimal.Decimal       `gorm:"column:amount;type:numeric(20,8);not null"`
	Currency           enums.Currency        `gorm:"column:currency;type:text;not null;default:'NGN'"`
	ExternalReference  *string               `gorm:"column:external_reference"`
	AuthorizationURL   *string               `gorm:"column:authorization_url"`
	FailureReason      *string               `gorm:"column:failure_reason"`
	RefundedAmount     decimal.Decimal       `gorm:"column:refunded_amount;type:numeric(20,8);not null;default:0"`
	GatewayRawResponse json.RawMessage       `gorm:"column:gateway_raw_response;type:jsonb"`
	CompletedAt        *time.Time            `gorm:"column:completed_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
