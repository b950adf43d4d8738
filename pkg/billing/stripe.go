package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey         string `env:"STRIPE_SECRET_KEY,required,notEmpty"`
	WebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET,required,notEmpty"`
	APIURL            string `env:"STRIPE_API_URL"` // override, e.g. stripe-mock
	MaxNetworkRetries int64  `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
}

// StripePriceMetadataKey is set on checkout sessions and their subscriptions so
// that every later event can be mapped back to a catalog plan.
const StripePriceMetadataKey = "price_id"

// StripeProvider implements Provider for Stripe.
type StripeProvider struct {
	sessions      session.Client
	webhookSecret string
}

// StripeOption configures a StripeProvider.
type StripeOption func(*stripe.BackendConfig)

// WithStripeLogger routes stripe-go client logs through l.
func WithStripeLogger(l *slog.Logger) StripeOption {
	return func(c *stripe.BackendConfig) {
		if l != nil {
			c.LeveledLogger = &stripeSlogAdapter{log: l}
		}
	}
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(cfg StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(max(cfg.MaxNetworkRetries, 0)),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimSuffix(cfg.APIURL, "/"))
	}
	for _, opt := range opts {
		opt(backendCfg)
	}

	return &StripeProvider{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// CreateCheckoutLink creates a subscription-mode Checkout Session with one line item.
func (p *StripeProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{StripePriceMetadataKey: req.PriceID},
		},
	}
	params.Context = ctx
	params.AddMetadata(StripePriceMetadataKey, req.PriceID)

	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.SuccessURL != "" {
		params.SuccessURL = stripe.String(req.SuccessURL)
	}
	if req.CancelURL != "" {
		params.CancelURL = stripe.String(req.CancelURL)
	}

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, stripeProviderError(err)
	}
	if s.URL == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: ErrNoCheckoutURL.Error(), Err: ErrNoCheckoutURL}
	}

	link := &CheckoutLink{URL: s.URL, SessionID: s.ID}
	if s.ExpiresAt > 0 {
		link.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return link, nil
}

// ParseWebhook verifies the Stripe-Signature header over the raw payload and
// normalizes the event.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, errors.Join(ErrWebhookVerificationFailed, ErrMissingSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	return normalizeStripeEvent(event)
}

func normalizeStripeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{
		ID:            event.ID,
		Type:          EventType(event.Type),
		ProviderEvent: string(event.Type),
	}
	if event.Created > 0 {
		out.OccurredAt = time.Unix(event.Created, 0).UTC()
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeInvoicePaid:
		out.Type = EventPaymentSucceeded
		var obj stripePaymentObject
		if err := decodeStripeObject(raw, &obj); err != nil {
			out.DecodeErr = err
			return out, nil
		}
		out.Email = firstOf(&obj, stripeEmailProbes...)
		out.PriceID = firstOf(&obj, stripePriceIDProbes...)
		out.CustomerID = obj.Customer.String()

	case stripe.EventTypeCustomerSubscriptionDeleted:
		out.Type = EventSubscriptionCancelled
		var obj stripeSubscriptionObject
		if err := decodeStripeObject(raw, &obj); err != nil {
			out.DecodeErr = err
			return out, nil
		}
		out.CustomerID = obj.Customer.String()
		end := firstOf(&obj, stripePeriodEndProbes...)
		if end == 0 {
			end = event.Created
		}
		if end > 0 {
			t := time.Unix(end, 0).UTC()
			out.PeriodEnd = &t
		}
	}

	return out, nil
}

func decodeStripeObject(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformedWebhook, err)
	}
	return nil
}

// stripePaymentObject covers the fields of checkout.session and invoice objects that
// identify who paid and for which price.
type stripePaymentObject struct {
	Customer        objectRef               `json:"customer"`
	CustomerEmail   string                  `json:"customer_email"`
	CustomerDetails *stripeDetails          `json:"customer_details"`
	Metadata        map[string]string       `json:"metadata"`
	Lines           *stripeList[stripeLine] `json:"lines"`
	LineItems       *stripeList[stripeLine] `json:"line_items"`

	SubscriptionDetails *stripeDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *stripeDetails `json:"subscription_details"`
	} `json:"parent"`
}

type stripeDetails struct {
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeList[T any] struct {
	Data []T `json:"data"`
}

func (l *stripeList[T]) first() *T {
	if l == nil || len(l.Data) == 0 {
		return nil
	}
	return &l.Data[0]
}

type stripeLine struct {
	Price   objectRef `json:"price"`
	Pricing *struct {
		PriceDetails *struct {
			Price objectRef `json:"price"`
		} `json:"price_details"`
	} `json:"pricing"`
}

type stripeSubscriptionObject struct {
	Customer         objectRef `json:"customer"`
	CurrentPeriodEnd int64     `json:"current_period_end"`
	EndedAt          int64     `json:"ended_at"`
	CanceledAt       int64     `json:"canceled_at"`
	Items            *stripeList[struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
	}] `json:"items"`
}

var stripeEmailProbes = []probe[stripePaymentObject, string]{
	func(o *stripePaymentObject) string { return strings.TrimSpace(o.CustomerEmail) },
	func(o *stripePaymentObject) string {
		if o.CustomerDetails == nil {
			return ""
		}
		return strings.TrimSpace(o.CustomerDetails.Email)
	},
}

// Order matters: invoice line price, invoice line pricing details (newer API versions),
// expanded session line items, then the metadata written at checkout.
var stripePriceIDProbes = []probe[stripePaymentObject, string]{
	func(o *stripePaymentObject) string {
		if line := o.Lines.first(); line != nil {
			return line.Price.String()
		}
		return ""
	},
	func(o *stripePaymentObject) string {
		line := o.Lines.first()
		if line == nil || line.Pricing == nil || line.Pricing.PriceDetails == nil {
			return ""
		}
		return line.Pricing.PriceDetails.Price.String()
	},
	func(o *stripePaymentObject) string {
		if item := o.LineItems.first(); item != nil {
			return item.Price.String()
		}
		return ""
	},
	func(o *stripePaymentObject) string { return stringValue(o.Metadata, StripePriceMetadataKey) },
	func(o *stripePaymentObject) string {
		if o.SubscriptionDetails == nil {
			return ""
		}
		return stringValue(o.SubscriptionDetails.Metadata, StripePriceMetadataKey)
	},
	func(o *stripePaymentObject) string {
		if o.Parent == nil || o.Parent.SubscriptionDetails == nil {
			return ""
		}
		return stringValue(o.Parent.SubscriptionDetails.Metadata, StripePriceMetadataKey)
	},
}

var stripePeriodEndProbes = []probe[stripeSubscriptionObject, int64]{
	func(o *stripeSubscriptionObject) int64 { return o.CurrentPeriodEnd },
	func(o *stripeSubscriptionObject) int64 {
		if item := o.Items.first(); item != nil {
			return item.CurrentPeriodEnd
		}
		return 0
	},
	func(o *stripeSubscriptionObject) int64 { return o.EndedAt },
	func(o *stripeSubscriptionObject) int64 { return o.CanceledAt },
}

func stripeProviderError(err error) *ProviderError {
	msg := err.Error()
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		msg = serr.Msg
	}
	return &ProviderError{Provider: "stripe", Message: msg, Err: err}
}

// stripeSlogAdapter bridges stripe-go's printf-style leveled logger to slog.
type stripeSlogAdapter struct {
	log *slog.Logger
}

func (a *stripeSlogAdapter) Debugf(format string, v ...any) { a.log.Debug(fmt.Sprintf(format, v...)) }
func (a *stripeSlogAdapter) Infof(format string, v ...any)  { a.log.Info(fmt.Sprintf(format, v...)) }
func (a *stripeSlogAdapter) Warnf(format string, v ...any)  { a.log.Warn(fmt.Sprintf(format, v...)) }
func (a *stripeSlogAdapter) Errorf(format string, v ...any) { a.log.Error(fmt.Sprintf(format, v...)) }
