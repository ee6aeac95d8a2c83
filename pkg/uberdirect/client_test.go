package uberdirect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/forkline-app/forkline-backend/pkg/config"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

func newTestClient(t *testing.T, apiURL, authURL string) *Client {
	t.Helper()
	cfg := config.DeliveryConfig{
		UberDirectClientID:     "client_id",
		UberDirectClientSecret: "client_secret",
		UberDirectCustomerID:   "cust_1",
		UberDirectBaseURL:      apiURL,
		UberDirectSigningKey:   "uber_signing_key",
	}
	client, err := NewClient(cfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if authURL != "" {
		client.authEndpoint = authURL
	}
	return client
}

func newAuthServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Fatalf("unexpected grant type %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok_abc","expires_in":3600}`))
	}))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.DeliveryConfig{UberDirectCustomerID: "c"}, logger.New(logger.Options{ServiceName: "test"}))
	if err == nil {
		t.Fatal("expected missing credentials error")
	}
}

func TestCreateQuoteUsesCachedToken(t *testing.T) {
	var authCalls int32
	authServer := newAuthServer(t, &authCalls)
	defer authServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/customers/cust_1/delivery_quotes" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok_abc" {
			t.Fatalf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dqt_1","fee":250000,"currency_type":"NGN"}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer.URL, authServer.URL)

	req := QuoteRequest{PickupAddress: "1 Vendor Way", DropoffAddress: "2 Buyer Close"}
	for i := 0; i < 2; i++ {
		quote, err := client.CreateQuote(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.ID != "dqt_1" || quote.Fee != 250000 {
			t.Fatalf("unexpected quote %+v", quote)
		}
	}

	if got := atomic.LoadInt32(&authCalls); got != 1 {
		t.Fatalf("expected a single token fetch, got %d", got)
	}
}

func TestCreateDeliveryMapsAPIError(t *testing.T) {
	var authCalls int32
	authServer := newAuthServer(t, &authCalls)
	defer authServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_params","message":"quote has expired"}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer.URL, authServer.URL)
	_, err := client.CreateDelivery(context.Background(), DeliveryRequest{QuoteID: "dqt_1"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if typed.Message() != "quote has expired" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
}

func TestTokenRejectedCredentials(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer authServer.Close()

	client := newTestClient(t, "http://localhost:0", authServer.URL)
	_, err := client.CreateQuote(context.Background(), QuoteRequest{PickupAddress: "a", DropoffAddress: "b"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
