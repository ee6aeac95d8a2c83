package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

func TestMapStripeErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{
			name: "card decline",
			err:  &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined},
			want: pkgerrors.CodeProvider,
		},
		{
			name: "bad credentials",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized},
			want: pkgerrors.CodeUnauthorized,
		},
		{
			name: "rate limited",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests},
			want: pkgerrors.CodeRateLimit,
		},
		{
			name: "rejected request",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest},
			want: pkgerrors.CodeValidation,
		},
		{
			name: "stripe server error",
			err:  &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
			want: pkgerrors.CodeProvider,
		},
		{
			name: "wrapped stripe error",
			err:  fmt.Errorf("charge: %w", &stripe.Error{Type: stripe.ErrorTypeCard}),
			want: pkgerrors.CodeProvider,
		},
		{
			name: "transport failure",
			err:  errors.New("connection reset"),
			want: pkgerrors.CodeDependency,
		},
	}

	for _, tt := range tests {
		mapped := mapStripeError(tt.err, "charge saved card")
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: expected typed error, got %v", tt.name, mapped)
		}
		if typed.Code() != tt.want {
			t.Fatalf("%s: expected code %s got %s", tt.name, tt.want, typed.Code())
		}
		if !errors.Is(mapped, tt.err) {
			t.Fatalf("%s: mapped error should wrap the cause", tt.name)
		}
	}
}

func TestMapStripeErrorNil(t *testing.T) {
	if err := mapStripeError(nil, "refund"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
