package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// CheckoutConfig holds the fixed redirect targets for hosted checkout.
type CheckoutConfig struct {
	SuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"https://tonsite.com/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"https://tonsite.com/cancel"`
}

// Initiator creates subscription checkout sessions. It never touches local storage.
type Initiator struct {
	provider Provider
	cfg      CheckoutConfig
	logger   *slog.Logger
	metrics  *Metrics
}

// InitiatorOption configures an Initiator.
type InitiatorOption func(*Initiator)

func WithInitiatorLogger(l *slog.Logger) InitiatorOption {
	return func(i *Initiator) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithInitiatorMetrics(m *Metrics) InitiatorOption {
	return func(i *Initiator) { i.metrics = m }
}

// NewInitiator panics if provider is nil to fail fast during initialization.
func NewInitiator(provider Provider, cfg CheckoutConfig, opts ...InitiatorOption) *Initiator {
	if provider == nil {
		panic("billing: Provider is required")
	}
	i := &Initiator{
		provider: provider,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CreateCheckout asks the provider for a subscription checkout session for email and
// priceID. The price ID is not validated locally; the provider decides.
// Provider failures are returned as *ProviderError.
func (i *Initiator) CreateCheckout(ctx context.Context, email, priceID string) (*CheckoutLink, error) {
	email = strings.TrimSpace(email)
	priceID = strings.TrimSpace(priceID)

	if email == "" {
		return nil, ErrMissingEmail
	}
	if priceID == "" {
		return nil, ErrMissingPriceID
	}

	link, err := i.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    priceID,
		Email:      email,
		SuccessURL: i.cfg.SuccessURL,
		CancelURL:  i.cfg.CancelURL,
	})
	if err != nil {
		i.metrics.observeCheckout(i.provider.Name(), "error")
		i.logger.ErrorContext(ctx, "checkout session creation failed",
			logger.Provider(i.provider.Name()),
			logger.PriceID(priceID),
			logger.Error(err),
		)

		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &ProviderError{Provider: i.provider.Name(), Message: err.Error(), Err: err}
	}

	i.metrics.observeCheckout(i.provider.Name(), "created")
	i.logger.InfoContext(ctx, "checkout session created",
		logger.Provider(i.provider.Name()),
		logger.PriceID(priceID),
		slog.String("session_id", link.SessionID),
	)

	return link, nil
}
