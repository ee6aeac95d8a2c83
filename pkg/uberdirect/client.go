package uberdirect

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
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/forkline-app/forkline-backend/pkg/config"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	pkgretry "github.com/forkline-app/forkline-backend/pkg/retry"
)

const (
	defaultTimeout = 20 * time.Second
	authURL        = "https://auth.uber.com/oauth/v2/token"
	tokenScope     = "eats.deliveries"

	// tokenSkew renews the cached token slightly before Uber expires it.
	tokenSkew = 60 * time.Second
)

var (
	errCredentialsRequired = errors.New("uber direct client id and secret are required")
	errCustomerIDRequired  = errors.New("uber direct customer id is required")
	errLoggerRequired      = errors.New("uber direct logger is required")
)

// Client wraps Uber Direct's delivery API with OAuth token caching.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	customerID   string
	signingKey   string
	authEndpoint string
	logger       *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates the credentials and builds the wrapper.
func NewClient(cfg config.DeliveryConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	clientID := strings.TrimSpace(cfg.UberDirectClientID)
	clientSecret := strings.TrimSpace(cfg.UberDirectClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}
	customerID := strings.TrimSpace(cfg.UberDirectCustomerID)
	if customerID == "" {
		return nil, errCustomerIDRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.UberDirectBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.uber.com"
	}

	return &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		customerID:   customerID,
		signingKey:   strings.TrimSpace(cfg.UberDirectSigningKey),
		authEndpoint: authURL,
		logger:       logg,
	}, nil
}

// QuoteRequest asks for a delivery quote between two street addresses.
type QuoteRequest struct {
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
}

// Quote is the priced offer returned by Uber Direct.
type Quote struct {
	ID         string          `json:"id"`
	Fee        int64           `json:"fee"`
	Currency   string          `json:"currency_type"`
	ExpiresAt  time.Time       `json:"expires"`
	DurationMS int64           `json:"duration,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// DeliveryRequest books a courier against a quote.
type DeliveryRequest struct {
	QuoteID          string         `json:"quote_id"`
	PickupName       string         `json:"pickup_name"`
	PickupAddress    string         `json:"pickup_address"`
	PickupPhone      string         `json:"pickup_phone_number"`
	DropoffName      string         `json:"dropoff_name"`
	DropoffAddress   string         `json:"dropoff_address"`
	DropoffPhone     string         `json:"dropoff_phone_number"`
	ManifestItems    []ManifestItem `json:"manifest_items"`
	ExternalOrderRef string         `json:"external_id,omitempty"`
}

// ManifestItem describes one parcel line.
type ManifestItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Delivery is the booked courier job.
type Delivery struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	TrackingURL string          `json:"tracking_url,omitempty"`
	Fee         int64           `json:"fee,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// CreateQuote prices a delivery. Quotes are read-only so transient failures retry.
func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.PickupAddress == "" || req.DropoffAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and dropoff addresses are required")
	}

	c.log(ctx, "request", "create_quote", nil)

	var quote Quote
	err := pkgretry.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, c.customerPath("delivery_quotes"), req, &quote)
	})
	if err != nil {
		c.log(ctx, "error", "create_quote", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_quote", map[string]any{"quote_id": quote.ID, "fee": quote.Fee})
	return &quote, nil
}

// CreateDelivery books a courier against a previously created quote.
func (c *Client) CreateDelivery(ctx context.Context, req DeliveryRequest) (*Delivery, error) {
	if req.QuoteID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id is required")
	}

	c.log(ctx, "request", "create_delivery", map[string]any{"quote_id": req.QuoteID})

	var delivery Delivery
	if err := c.call(ctx, http.MethodPost, c.customerPath("deliveries"), req, &delivery); err != nil {
		c.log(ctx, "error", "create_delivery", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_delivery", map[string]any{
		"delivery_id": delivery.ID,
		"status":      delivery.Status,
	})
	return &delivery, nil
}

// GetDelivery fetches the current state of a booked delivery.
func (c *Client) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	if deliveryID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}

	var delivery Delivery
	err := pkgretry.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, c.customerPath("deliveries/"+deliveryID), nil, &delivery)
	})
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

// CancelDelivery voids a booked courier job.
func (c *Client) CancelDelivery(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}

	c.log(ctx, "request", "cancel_delivery", map[string]any{"delivery_id": deliveryID})

	if err := c.call(ctx, http.MethodPost, c.customerPath("deliveries/"+deliveryID+"/cancel"), nil, nil); err != nil {
		c.log(ctx, "error", "cancel_delivery", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "cancel_delivery", map[string]any{"delivery_id": deliveryID})
	return nil
}

// SigningKeyConfigured reports whether webhook verification is possible.
func (c *Client) SigningKeyConfigured() bool {
	return c != nil && c.signingKey != ""
}

// VerifySignature checks the X-Postmates-Signature header against the raw body
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

func (c *Client) customerPath(suffix string) string {
	return fmt.Sprintf("/v1/customers/%s/%s", c.customerID, suffix)
}

// token returns a cached OAuth token, refreshing it when near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSkew)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {tokenScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "uber auth unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, fmt.Sprintf("uber auth rejected credentials (status %d)", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode uber token")
	}
	if payload.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeProvider, "uber auth returned empty token")
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode uber request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build uber request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "uber direct unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "read uber response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapAPIError(resp.StatusCode, raw)
	}

	if dest != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode uber payload")
		}
		switch v := dest.(type) {
		case *Quote:
			v.Raw = raw
		case *Delivery:
			v.Raw = raw
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, raw []byte) error {
	message := "uber direct request failed"
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		message = payload.Message
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
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(fmt.Errorf("uber status %d", status)), message)
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
		"provider":  "uber_direct",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("uber direct %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("uber direct %s", phase))
	}
}
