package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/logger"
)

const maxCheckoutBodyBytes = 64 << 10

type checkoutRequest struct {
	Email   string `json:"email"`
	PriceID string `json:"priceId"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type checkoutHandler struct {
	checkout CheckoutCreator
	log      *slog.Logger
}

func (h *checkoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = h.handle(w, r).Render(w, r)
}

func (h *checkoutHandler) handle(w http.ResponseWriter, r *http.Request) response {
	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutBodyBytes)).Decode(&req); err != nil {
		return jsonError(http.StatusBadRequest, "invalid request body")
	}

	link, err := h.checkout.CreateCheckout(r.Context(), req.Email, req.PriceID)
	if err != nil {
		var perr *billing.ProviderError
		switch {
		case errors.Is(err, billing.ErrMissingEmail), errors.Is(err, billing.ErrMissingPriceID):
			return jsonError(http.StatusBadRequest, err.Error())
		case errors.As(err, &perr):
			return jsonError(http.StatusInternalServerError, perr.Error())
		default:
			h.log.ErrorContext(r.Context(), "checkout failed", logger.Error(err))
			return jsonError(http.StatusInternalServerError, err.Error())
		}
	}

	return jsonResponse{status: http.StatusOK, body: checkoutResponse{URL: link.URL}}
}
