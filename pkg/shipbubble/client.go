package shipbubble

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forkline-app/forkline-backend/pkg/config"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	pkgretry "github.com/forkline-app/forkline-backend/pkg/retry"
)

const defaultTimeout = 20 * time.Second

var (
	errAPIKeyRequired = errors.New("shipbubble api key is required")
	errLoggerRequired = errors.New("shipbubble logger is required")
)

// Client wraps Shipbubble's REST API for domestic courier bookings.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	signingKey string
	logger     *logger.Logger
}

// NewClient validates the credentials and builds the wrapper.
func NewClient(cfg config.DeliveryConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.ShipbubbleAPIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.ShipbubbleBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.shipbubble.com/v1"
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		signingKey: strings.TrimSpace(cfg.ShipbubbleSigningKey),
		logger:     logg,
	}, nil
}

// Address is a pickup or dropoff location.
type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
}

// PackageItem describes one line of the parcel manifest.
type PackageItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   string `json:"amount"`
	WeightKG string `json:"unit_weight"`
}

// RateRequest asks for courier rates between two addresses.
type RateRequest struct {
	Sender     Address       `json:"sender_details"`
	Receiver   Address       `json:"reciever_details"`
	Category   string        `json:"category,omitempty"`
	Items      []PackageItem `json:"package_items"`
	PickupDate string        `json:"pickup_date,omitempty"`
}

// Rate is one courier option inside a rate response.
type Rate struct {
	CourierID   string `json:"courier_id"`
	CourierName string `json:"courier_name"`
	ServiceCode string `json:"service_code"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	DeliveryETA string `json:"delivery_eta,omitempty"`
}

// RateResponse carries the request token needed to book one of the rates.
type RateResponse struct {
	RequestToken string          `json:"request_token"`
	Rates        []Rate          `json:"couriers"`
	Raw          json.RawMessage `json:"-"`
}

// ShipmentRequest books a label against a previously fetched rate.
type ShipmentRequest struct {
	RequestToken string `json:"request_token"`
	ServiceCode  string `json:"service_code"`
	CourierID    string `json:"courier_id"`
}

// Shipment is the booked label returned by Shipbubble.
type Shipment struct {
	OrderID        string          `json:"order_id"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	Status         string          `json:"status"`
	Raw            json.RawMessage `json:"-"`
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// FetchRates requests courier rates. Rate lookups are read-only, so transient
// failures are retried.
func (c *Client) FetchRates(ctx context.Context, req RateRequest) (*RateResponse, error) {
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package items are required")
	}

	c.log(ctx, "request", "fetch_rates", map[string]any{"items": len(req.Items)})

	var rates RateResponse
	err := pkgretry.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/shipping/fetch_rates", req, &rates)
	})
	if err != nil {
		c.log(ctx, "error", "fetch_rates", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "fetch_rates", map[string]any{"couriers": len(rates.Rates)})
	return &rates, nil
}

// CreateShipment books a courier label against a fetched rate token.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	if req.RequestToken == "" || req.ServiceCode == "" || req.CourierID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request token, service code, and courier id are required")
	}

	c.log(ctx, "request", "create_shipment", map[string]any{"courier_id": req.CourierID})

	var shipment Shipment
	if err := c.call(ctx, http.MethodPost, "/shipping/labels", req, &shipment); err != nil {
		c.log(ctx, "error", "create_shipment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_shipment", map[string]any{
		"order_id": shipment.OrderID,
		"status":   shipment.Status,
	})
	return &shipment, nil
}

// CancelShipment voids a booked label.
func (c *Client) CancelShipment(ctx context.Context, orderID string) error {
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	c.log(ctx, "request", "cancel_shipment", map[string]any{"order_id": orderID})

	if err := c.call(ctx, http.MethodPost, "/shipping/labels/cancel/"+orderID, nil, nil); err != nil {
		c.log(ctx, "error", "cancel_shipment", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "cancel_shipment", map[string]any{"order_id": orderID})
	return nil
}

// TrackShipment fetches the current courier status for a booked label.
func (c *Client) TrackShipment(ctx context.Context, orderID string) (*Shipment, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var shipment Shipment
	err := pkgretry.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, "/shipping/labels/track/"+orderID, nil, &shipment)
	})
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// SigningKeyConfigured reports whether webhook verification is possible.
func (c *Client) SigningKeyConfigured() bool {
	return c != nil && c.signingKey != ""
}

// VerifySignature checks the webhook signature header against the raw body
// using HMAC-SHA256 with the configured signing key.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c == nil || c.signingKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.signingKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipbubble request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build shipbubble request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "shipbubble unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "read shipbubble response")
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode shipbubble response")
	}

	if resp.StatusCode >= http.StatusBadRequest || !strings.EqualFold(envelope.Status, "success") {
		return c.mapAPIError(resp.StatusCode, envelope.Message)
	}

	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode shipbubble payload")
		}
		switch v := dest.(type) {
		case *RateResponse:
			v.Raw = envelope.Data
		case *Shipment:
			v.Raw = envelope.Data
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, message string) error {
	if message == "" {
		message = "shipbubble request failed"
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, message)
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	case http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeRateLimit, message)
	}
	if status >= http.StatusInternalServerError {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(fmt.Errorf("shipbubble status %d", status)), message)
	}
	return pkgerrors.New(pkgerrors.CodeProvider, message)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
		"provider":  "shipbubble",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("shipbubble %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("shipbubble %s", phase))
	}
}
