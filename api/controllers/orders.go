package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/delivery"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type createOrderItemRequest struct {
	MenuItemID     uuid.UUID       `json:"menu_item_id" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	Quantity       int             `json:"quantity" validate:"required,min=1"`
	UnitPrice      decimal.Decimal `json:"unit_price" validate:"required"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

type createOrderRequest struct {
	VendorID          uuid.UUID                `json:"vendor_id" validate:"required"`
	Type              string                   `json:"type" validate:"required"`
	PaymentMethod     string                   `json:"payment_method" validate:"required"`
	Currency          string                   `json:"currency,omitempty"`
	DeliveryAddressID *uuid.UUID               `json:"delivery_address_id,omitempty"`
	DeliveryQuoteID   *uuid.UUID               `json:"delivery_quote_id,omitempty"`
	DiscountAmount    decimal.Decimal          `json:"discount_amount,omitempty"`
	Items             []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder opens a new order. For delivery orders with a selected quote
// the delivery fee is read from the quote, never from the request.
func CreateOrder(svc orders.Service, quotes delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderType, err := enums.ParseOrderType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type"))
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		deliveryFee := decimal.Zero
		if req.DeliveryQuoteID != nil {
			quote, err := quotes.GetQuote(r.Context(), *req.DeliveryQuoteID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if quote.Status != enums.QuoteStatusSelected {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery quote is not selected"))
				return
			}
			deliveryFee = quote.Fee
		}

		items := make([]orders.CreateOrderItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, orders.CreateOrderItemInput{
				MenuItemID:     item.MenuItemID,
				Name:           item.Name,
				Quantity:       item.Quantity,
				UnitPrice:      item.UnitPrice,
				Customizations: item.Customizations,
			})
		}

		order, err := svc.Create(r.Context(), orders.CreateOrderInput{
			CustomerID:        customerID,
			VendorID:          req.VendorID,
			Type:              orderType,
			PaymentMethod:     method,
			Currency:          enums.Currency(req.Currency),
			DeliveryAddressID: req.DeliveryAddressID,
			DeliveryQuoteID:   req.DeliveryQuoteID,
			DeliveryFee:       deliveryFee,
			DiscountAmount:    req.DiscountAmount,
			Items:             items,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// GetOrder returns one order. Customers see only their own orders; vendor,
// admin and ops roles see any.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role := middleware.RoleFromContext(r.Context())
		if role == enums.ActorRoleCustomer && order.CustomerID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListOrders pages the caller's orders: customers by customer id, vendors by
// vendor id.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var rows any
		switch middleware.RoleFromContext(r.Context()) {
		case enums.ActorRoleVendor:
			rows, err = svc.ListByVendor(r.Context(), userID, limit, offset)
		default:
			rows, err = svc.ListByCustomer(r.Context(), userID, limit, offset)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus drives vendor/ops fulfillment transitions.
func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderID: orderID,
			To:      status,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelOrder cancels an order through the payment orchestrator so a settled
// payment is refunded in the same operation.
func CancelOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelOrder(r.Context(), payments.CancelOrderInput{
			OrderID:   orderID,
			Reason:    validators.SanitizeString(req.Reason, 500),
			ActorKind: cancelActorForRole(middleware.RoleFromContext(r.Context())),
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
