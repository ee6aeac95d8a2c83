package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
)

type DeliveryWebhookService interface {
	ProcessWebhook(ctx context.Context, provider enums.DeliveryProvider, payload []byte, signature string) error
}

// Each courier signs with its own header.
var deliverySignatureHeaders = map[enums.DeliveryProvider]string{
	enums.DeliveryProviderShipbubble: "x-shipbubble-signature",
	enums.DeliveryProviderUberDirect: "x-postmates-signature",
}

// DeliveryWebhook handles courier status callbacks. The provider comes from
// the URL; signature verification and status mapping happen in the delivery
// service.
func DeliveryWebhook(svc DeliveryWebhookService, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw := strings.TrimSpace(chi.URLParam(r, "provider"))
		wm.IncReceived(raw)

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		provider, err := enums.ParseDeliveryProvider(raw)
		if err != nil {
			wm.IncRejected(raw)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown delivery provider"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(deliverySignatureHeaders[provider])
		if err := svc.ProcessWebhook(ctx, provider, payload, signature); err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeUnauthorized {
				wm.IncRejected(string(provider))
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("%s delivery event processed", provider))
		}
		responses.WriteSuccess(w, nil)
	}
}
