package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

const defaultTimeout = 15 * time.Second

var (
	errSecretKeyRequired = errors.New("paystack secret key is required")
	errLoggerRequired    = errors.New("paystack logger is required")
)

// Client wraps Paystack's REST API with auth, logging, and error mapping.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	logger      *logger.Logger
}

// NewClient validates the credentials and builds the wrapper.
func NewClient(cfg config.PaymentsConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	secretKey := strings.TrimSpace(cfg.PaystackSecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PaystackBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}

	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: strings.TrimSpace(cfg.PaystackCallback),
		logger:      logg,
	}, nil
}

// InitTransactionParams starts a gateway-redirect payment.
type InitTransactionParams struct {
	Email            string `json:"email"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference"`
	CallbackURL      string `json:"callback_url,omitempty"`
}

// Transaction is the subset of Paystack's transaction payload the engine consumes.
type Transaction struct {
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	AccessCode       string          `json:"access_code,omitempty"`
	Reference        string          `json:"reference"`
	Status           string          `json:"status,omitempty"`
	Amount           int64           `json:"amount,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	GatewayResponse  string          `json:"gateway_response,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// RefundParams requests a refund of a settled transaction.
type RefundParams struct {
	Transaction      string `json:"transaction"`
	AmountMinorUnits int64  `json:"amount,omitempty"`
	MerchantNote     string `json:"merchant_note,omitempty"`
}

// Refund is the subset of Paystack's refund payload the engine consumes.
type Refund struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction creates a redirect checkout session and returns its authorization URL.
func (c *Client) InitializeTransaction(ctx context.Context, params InitTransactionParams) (*Transaction, error) {
	if params.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if params.AmountMinorUnits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if params.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if params.CallbackURL == "" {
		params.CallbackURL = c.callbackURL
	}

	c.log(ctx, "request", "initialize_transaction", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountMinorUnits,
		"currency":  params.Currency,
	})

	var txn Transaction
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", params, &txn); err != nil {
		c.log(ctx, "error", "initialize_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "initialize_transaction", map[string]any{"reference": txn.Reference})
	return &txn, nil
}

// VerifyTransaction fetches the settled state of a transaction by reference.
// Verification is read-only so transient network failures are retried.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	c.log(ctx, "request", "verify_transaction", map[string]any{"reference": reference})

	var txn Transaction
	err := pkgretry.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &txn)
	})
	if err != nil {
		c.log(ctx, "error", "verify_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "verify_transaction", map[string]any{
		"reference": txn.Reference,
		"status":    txn.Status,
	})
	return &txn, nil
}

// RefundTransaction issues a refund. A zero amount refunds the full transaction.
func (c *Client) RefundTransaction(ctx context.Context, params RefundParams) (*Refund, error) {
	if params.Transaction == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	c.log(ctx, "request", "refund_transaction", map[string]any{
		"transaction": params.Transaction,
		"amount":      params.AmountMinorUnits,
	})

	var ref Refund
	if err := c.call(ctx, http.MethodPost, "/refund", params, &ref); err != nil {
		c.log(ctx, "error", "refund_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "refund_transaction", map[string]any{"refund_id": ref.ID, "status": ref.Status})
	return &ref, nil
}

// VerifySignature checks the x-paystack-signature header against the raw body.
// Paystack signs the payload with HMAC-SHA512 using the account secret key.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c == nil || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paystack request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "paystack unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(err), "read paystack response")
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode paystack response")
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Status {
		return c.mapAPIError(resp.StatusCode, envelope.Message)
	}

	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode paystack payload")
		}
		if txn, ok := dest.(*Transaction); ok {
			txn.Raw = envelope.Data
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, message string) error {
	if message == "" {
		message = "paystack request failed"
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
		return pkgerrors.Wrap(pkgerrors.CodeDependency, pkgretry.Transient(fmt.Errorf("paystack status %d", status)), message)
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
		"provider":  "paystack",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paystack %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paystack %s", phase))
	}
}
