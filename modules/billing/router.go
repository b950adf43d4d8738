// Package billing exposes the checkout and webhook HTTP endpoints.
package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/logger"
)

// CheckoutCreator creates hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, email, priceID string) (*billing.CheckoutLink, error)
}

// WebhookReconciler verifies and applies provider webhook deliveries.
type WebhookReconciler interface {
	SignatureHeader() string
	Reconcile(ctx context.Context, payload []byte, signature string) (*billing.Result, error)
}

// RouterOptions configures which endpoints are mounted.
// Each endpoint is optional and only mounted when its service is provided.
type RouterOptions struct {
	Checkout CheckoutCreator
	Webhook  WebhookReconciler
	Logger   *slog.Logger

	// CheckoutMiddlewares wrap the checkout handler after the method check,
	// e.g. a rate limiter.
	CheckoutMiddlewares []func(http.Handler) http.Handler

	// MaxWebhookBytes caps the webhook body. Defaults to DefaultMaxWebhookBytes.
	MaxWebhookBytes int64
}

// Router creates the billing module router.
//
//	r := chi.NewRouter()
//	r.Mount("/api", billing.Router(billing.RouterOptions{
//	    Checkout: initiator,
//	    Webhook:  reconciler,
//	    Logger:   log,
//	}))
func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("billing_http"))

	r := chi.NewRouter()

	if opts.Checkout != nil {
		h := chi.Chain(opts.CheckoutMiddlewares...).Handler(&checkoutHandler{checkout: opts.Checkout, log: log})
		r.HandleFunc("/checkout", allowOnly(http.MethodPost, h.ServeHTTP, methodNotAllowedJSON))
	}

	if opts.Webhook != nil {
		maxBytes := opts.MaxWebhookBytes
		if maxBytes <= 0 {
			maxBytes = DefaultMaxWebhookBytes
		}
		h := &webhookHandler{reconciler: opts.Webhook, log: log, maxBytes: maxBytes}
		r.HandleFunc("/webhook", allowOnly(http.MethodPost, h.ServeHTTP, methodNotAllowedText))
	}

	return r
}

// allowOnly answers any other method with 405 and an Allow header before the
// handler runs.
func allowOnly(method string, next http.HandlerFunc, reject func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			reject(w, r, method)
			return
		}
		next(w, r)
	}
}
