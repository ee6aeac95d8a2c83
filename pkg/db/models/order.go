package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Order is the aggregate root for a placed order. Status and payment status
// are written only by the order state machine; money fields are computed at
// creation and never mutated by downstream events.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID        uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	VendorID          uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	DeliveryAddressID *uuid.UUID            `gorm:"column:delivery_address_id;type:uuid"`
	Type              enums.OrderType       `gorm:"column:type;type:order_type;not null;default:'delivery'"`
	Status            enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'new'"`
	PaymentMethod     enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus     enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	Currency          enums.Currency        `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Subtotal          decimal.Decimal       `gorm:"column:subtotal;type:numeric(20,8);not null"`
	DeliveryFee       decimal.Decimal       `gorm:"column:delivery_fee;type:numeric(20,8);not null;default:0"`
	ServiceFee        decimal.Decimal       `gorm:"column:service_fee;type:numeric(20,8);not null;default:0"`
	DiscountAmount    decimal.Decimal       `gorm:"column:discount_amount;type:numeric(20,8);not null;default:0"`
	CommissionAmount  decimal.Decimal       `gorm:"column:commission_amount;type:numeric(20,8);not null;default:0"`
	TotalAmount       decimal.Decimal       `gorm:"column:total_amount;type:numeric(20,8);not null"`
	DeliveryQuoteID   *uuid.UUID            `gorm:"column:delivery_quote_id;type:uuid"`
	DeliveryID        *uuid.UUID            `gorm:"column:delivery_id;type:uuid"`
	CancelRequested   bool                  `gorm:"column:cancel_requested;not null;default:false"`
	CancelReason      *string               `gorm:"column:cancel_reason"`
	CancelActor       *enums.CancelActor    `gorm:"column:cancel_actor;type:cancel_actor"`
	ManualDelivery    bool                  `gorm:"column:manual_delivery;not null;default:false"`
	ConfirmedAt       *time.Time            `gorm:"column:confirmed_at"`
	ReadyAt           *time.Time            `gorm:"column:ready_at"`
	DeliveredAt       *time.Time            `gorm:"column:delivered_at"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at"`
	Items             []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is an immutable snapshot of a purchased menu item.
type OrderItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	MenuItemID     uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	Name           string          `gorm:"column:name;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(20,8);not null"`
	TotalPrice     decimal.Decimal `gorm:"column:total_price;type:numeric(20,8);not null"`
	Customizations json.RawMessage `gorm:"column:customizations;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
