package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/forkline-app/forkline-backend/api/responses"
	paystackwebhook "github.com/forkline-app/forkline-backend/internal/webhooks/paystack"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
)

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystackwebhook.Event) error
}

type paystackVerifier interface {
	VerifySignature(payload []byte, signature string) bool
}

type paystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaystackWebhook handles Paystack charge events. The body is verified
// against the x-paystack-signature HMAC before it is parsed; redeliveries are
// deduplicated on the charge reference.
func PaystackWebhook(svc PaystackWebhookService, verifier paystackVerifier, guard paystackWebhookGuard, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		wm.IncReceived("paystack")

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get("x-paystack-signature")
		if !verifier.VerifySignature(payload, signature) {
			wm.IncRejected("paystack")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature verification failed"))
			return
		}

		var event paystackwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			wm.IncRejected("paystack")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paystack event"))
			return
		}

		eventID := paystackEventID(&event)
		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			wm.IncDuplicate("paystack")
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("paystack event %s processed", event.Event))
		}
		responses.WriteSuccess(w, nil)
	}
}

// paystackEventID derives a dedupe key: Paystack does not ship a stable event
// id, so the event name plus charge reference stands in for one.
func paystackEventID(event *paystackwebhook.Event) string {
	var data struct {
		Reference string `json:"reference"`
	}
	_ = json.Unmarshal(event.Data, &data)
	return event.Event + ":" + data.Reference
}
