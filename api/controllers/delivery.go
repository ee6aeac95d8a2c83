package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/delivery"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

type quoteAddressRequest struct {
	Name        string  `json:"name" validate:"required"`
	Phone       string  `json:"phone" validate:"required"`
	Email       string  `json:"email,omitempty" validate:"omitempty,email"`
	AddressLine string  `json:"address_line" validate:"required"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country" validate:"required"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

type quoteParcelItemRequest struct {
	Name     string          `json:"name" validate:"required"`
	Quantity int             `json:"quantity" validate:"required,min=1"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	WeightKG decimal.Decimal `json:"weight_kg,omitempty"`
}

type requestQuotesRequest struct {
	Pickup  quoteAddressRequest      `json:"pickup" validate:"required"`
	Dropoff quoteAddressRequest      `json:"dropoff" validate:"required"`
	Items   []quoteParcelItemRequest `json:"items" validate:"required,min=1,dive"`
}

// RequestQuotes fans the quote request out to the couriers serving the
// dropoff country and returns every quote that came back.
func RequestQuotes(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req requestQuotesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]delivery.ParcelItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, delivery.ParcelItem{
				Name:     item.Name,
				Quantity: item.Quantity,
				Amount:   item.Amount,
				WeightKG: item.WeightKG,
			})
		}

		quotes, err := svc.RequestQuotes(r.Context(), delivery.RequestQuotesInput{
			OrderID: orderID,
			Country: req.Dropoff.Country,
			Pickup:  quoteAddress(req.Pickup),
			Dropoff: quoteAddress(req.Dropoff),
			Items:   items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, quotes)
	}
}

// ListQuotes returns the quotes recorded for an order.
func ListQuotes(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quotes, err := svc.ListQuotes(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quotes)
	}
}

// SelectQuote marks one quote as the order's choice, deselecting any other.
func SelectQuote(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseUUIDParam(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.SelectQuote(r.Context(), quoteID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// GetDelivery returns the shipment attached to an order.
func GetDelivery(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := parseUUIDParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.GetDelivery(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func quoteAddress(req quoteAddressRequest) delivery.Address {
	return delivery.Address{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		AddressLine: req.AddressLine,
		City:        req.City,
		Country:     req.Country,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
}
