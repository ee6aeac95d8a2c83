package shipbubble

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forkline-app/forkline-backend/pkg/config"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.DeliveryConfig{
		ShipbubbleAPIKey:     "sb_test_key",
		ShipbubbleBaseURL:    baseURL,
		ShipbubbleSigningKey: "sb_signing_key",
	}
	client, err := NewClient(cfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.DeliveryConfig{}, logger.New(logger.Options{ServiceName: "test"}))
	if err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestFetchRates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipping/fetch_rates" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sb_test_key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"rates fetched","data":{"request_token":"tok_1","couriers":[{"courier_id":"c1","courier_name":"GIG","service_code":"std","total":"1500.00","currency":"NGN"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	rates, err := client.FetchRates(context.Background(), RateRequest{
		Sender:   Address{Name: "Vendor", Phone: "+2348000000000", Address: "1 Vendor Way, Lagos"},
		Receiver: Address{Name: "Buyer", Phone: "+2348111111111", Address: "2 Buyer Close, Lagos"},
		Items:    []PackageItem{{Name: "Jollof rice", Quantity: 2, Amount: "5000.00", WeightKG: "1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rates.RequestToken != "tok_1" {
		t.Fatalf("unexpected request token %q", rates.RequestToken)
	}
	if len(rates.Rates) != 1 || rates.Rates[0].CourierName != "GIG" {
		t.Fatalf("unexpected rates %+v", rates.Rates)
	}
}

func TestCreateShipmentMapsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"request token expired"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.CreateShipment(context.Background(), ShipmentRequest{
		RequestToken: "tok_1",
		ServiceCode:  "std",
		CourierID:    "c1",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	payload := []byte(`{"order_id":"sb_1","status":"delivered"}`)

	mac := hmac.New(sha256.New, []byte("sb_signing_key"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature(payload, signature) {
		t.Fatal("expected valid signature to verify")
	}
	if client.VerifySignature(payload, "bad") {
		t.Fatal("expected invalid signature to fail")
	}

	unsigned, err := NewClient(config.DeliveryConfig{ShipbubbleAPIKey: "k"}, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if unsigned.SigningKeyConfigured() {
		t.Fatal("expected signing key to be unconfigured")
	}
	if unsigned.VerifySignature(payload, signature) {
		t.Fatal("expected verification to fail without a signing key")
	}
}
