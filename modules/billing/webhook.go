package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// DefaultMaxWebhookBytes caps webhook bodies. Provider events are far smaller.
const DefaultMaxWebhookBytes int64 = 1 << 20

type webhookAck struct {
	Received bool `json:"received"`
}

type webhookHandler struct {
	reconciler WebhookReconciler
	log        *slog.Logger
	maxBytes   int64
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = h.handle(w, r).Render(w, r)
}

func (h *webhookHandler) handle(w http.ResponseWriter, r *http.Request) response {
	// The signature covers the exact bytes, so the body is read raw and never re-encoded.
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return textResponse{status: http.StatusRequestEntityTooLarge, body: "Webhook Error: payload too large"}
		}
		return textResponse{status: http.StatusBadRequest, body: "Webhook Error: failed to read body"}
	}

	res, err := h.reconciler.Reconcile(r.Context(), payload, r.Header.Get(h.reconciler.SignatureHeader()))
	if err != nil {
		return textResponse{status: http.StatusBadRequest, body: "Webhook Error: " + strings.ReplaceAll(err.Error(), "\n", ": ")}
	}

	h.log.DebugContext(r.Context(), "webhook acknowledged",
		logger.EventID(res.EventID),
		logger.EventType(res.EventType),
		slog.String("outcome", string(res.Outcome)),
	)
	return jsonResponse{status: http.StatusOK, body: webhookAck{Received: true}}
}
