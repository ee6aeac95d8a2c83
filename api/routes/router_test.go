package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/delivery"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	pkgAuth "github.com/forkline-app/forkline-backend/pkg/auth"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersService struct {
	updateStatus func(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error)
}

func (s stubOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	panic("unimplemented")
}

func (s stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	panic("unimplemented")
}

func (s stubOrdersService) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (s stubOrdersService) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (s stubOrdersService) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error) {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, input)
	}
	return &models.Order{ID: input.OrderID, Status: input.To}, nil
}

func (s stubOrdersService) Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error) {
	panic("unimplemented")
}

func (s stubOrdersService) ConfirmTx(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, actor *outbox.ActorRef) error {
	panic("unimplemented")
}

func (s stubOrdersService) MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) error {
	panic("unimplemented")
}

func (s stubOrdersService) SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	panic("unimplemented")
}

func (s stubOrdersService) MarkDelivered(ctx context.Context, orderID uuid.UUID, deliveryID *uuid.UUID) error {
	panic("unimplemented")
}

func (s stubOrdersService) AttachDelivery(ctx context.Context, tx *gorm.DB, orderID, quoteID, deliveryID uuid.UUID) error {
	panic("unimplemented")
}

func (s stubOrdersService) FlagManualDelivery(ctx context.Context, orderID uuid.UUID, reason string) error {
	panic("unimplemented")
}

type stubPaymentsService struct{}

func (stubPaymentsService) InitiatePayment(ctx context.Context, input payments.InitiateInput) (*payments.InitiateResult, error) {
	panic("unimplemented")
}

func (stubPaymentsService) FundWallet(ctx context.Context, input payments.FundWalletInput) (*payments.InitiateResult, error) {
	panic("unimplemented")
}

func (stubPaymentsService) Confirm(ctx context.Context, input payments.ConfirmInput) (*models.Payment, error) {
	panic("unimplemented")
}

func (stubPaymentsService) Refund(ctx context.Context, input payments.RefundInput) (*models.Payment, error) {
	return &models.Payment{ID: input.PaymentID, Status: enums.PaymentStatusRefunded}, nil
}

func (stubPaymentsService) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	panic("unimplemented")
}

func (stubPaymentsService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return []models.Payment{}, nil
}

func (stubPaymentsService) CancelOrder(ctx context.Context, input payments.CancelOrderInput) (*models.Order, error) {
	panic("unimplemented")
}

func (stubPaymentsService) ExpireStaleAttempts(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

type stubWalletService struct{}

func (stubWalletService) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return &models.Wallet{ID: uuid.New(), UserID: userID}, nil
}

func (stubWalletService) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	panic("unimplemented")
}

func (stubWalletService) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	panic("unimplemented")
}

func (stubWalletService) Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return []models.WalletTransaction{}, nil
}

func (stubWalletService) Credit(ctx context.Context, input wallet.MovementInput) (*wallet.MovementResult, error) {
	panic("unimplemented")
}

func (stubWalletService) Debit(ctx context.Context, input wallet.MovementInput) (*wallet.MovementResult, error) {
	panic("unimplemented")
}

func (stubWalletService) CreditTx(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*wallet.MovementResult, error) {
	panic("unimplemented")
}

func (stubWalletService) DebitTx(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*wallet.MovementResult, error) {
	panic("unimplemented")
}

func (stubWalletService) RepairDuplicates(ctx context.Context, input wallet.RepairInput) (*wallet.RepairResult, error) {
	return &wallet.RepairResult{}, nil
}

func (stubWalletService) AuditBalance(ctx context.Context, walletID uuid.UUID) (*wallet.AuditResult, error) {
	return &wallet.AuditResult{WalletID: walletID}, nil
}

func (stubWalletService) ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	return nil, nil
}

type stubDeliveryService struct{}

func (stubDeliveryService) RequestQuotes(ctx context.Context, input delivery.RequestQuotesInput) ([]models.DeliveryQuote, error) {
	return []models.DeliveryQuote{}, nil
}

func (stubDeliveryService) GetQuote(ctx context.Context, quoteID uuid.UUID) (*models.DeliveryQuote, error) {
	panic("unimplemented")
}

func (stubDeliveryService) ListQuotes(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryQuote, error) {
	return []models.DeliveryQuote{}, nil
}

func (stubDeliveryService) SelectQuote(ctx context.Context, quoteID uuid.UUID, actor *outbox.ActorRef) (*models.DeliveryQuote, error) {
	panic("unimplemented")
}

func (stubDeliveryService) CreateShipmentForOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	panic("unimplemented")
}

func (stubDeliveryService) GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	panic("unimplemented")
}

func (stubDeliveryService) ProcessWebhook(ctx context.Context, provider enums.DeliveryProvider, payload []byte, signature string) error {
	return nil
}

func (stubDeliveryService) ExpireStaleQuotes(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func (stubDeliveryService) AvailableProviders() []enums.DeliveryProvider {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		nil, // redis client
		stubOrdersService{},
		stubPaymentsService{},
		stubWalletService{},
		stubDeliveryService{},
		nil, // stripe client
		nil, // paystack client
		nil, // stripe webhook service
		nil, // paystack webhook service
		nil, // stripe webhook guard
		nil, // paystack webhook guard
		nil, // webhook metrics
	)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for private ping got %d", resp.Code)
	}
}

func TestAdminGroupRequiresBackOfficeRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	for _, role := range []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleOps} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
		req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, role))
		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s got %d", role, resp.Code)
		}
	}
}

func TestOrderStatusRouteRequiresStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/orders/" + uuid.NewString() + "/status"

	customer := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"status":"preparing"}`))
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	customer.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer status change got %d", resp.Code)
	}

	vendor := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"status":"preparing"}`))
	vendor.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleVendor))
	vendor.Header.Set("Idempotency-Key", uuid.NewString())
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, vendor)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for vendor status change got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestRefundRouteRequiresBackOfficeRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/payments/" + uuid.NewString() + "/refund"

	customer := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"reason":"duplicate charge"}`))
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	customer.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer refund got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"reason":"duplicate charge"}`))
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin))
	admin.Header.Set("Idempotency-Key", uuid.NewString())
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin refund got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestDeliveryWebhookRejectsUnknownProvider(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/delivery/carrier-x", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown provider got %d", resp.Code)
	}
}

func TestDeliveryWebhookAcceptsKnownProvider(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/delivery/shipbubble", strings.NewReader(`{"event":"shipment.status.changed"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for shipbubble webhook got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(testConfig())

	live := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, live)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for live got %d", resp.Code)
	}
	if resp.Header().Get("X-Forkline-Env") != "test" {
		t.Fatalf("expected env header on live response")
	}

	ready := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, ready)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ready got %d", resp.Code)
	}
}
