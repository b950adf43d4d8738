package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required,notEmpty"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required,notEmpty"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

const (
	paddleCustomDataEmail   = "email"
	paddleCustomDataPriceID = "price_id"
)

// PaddleProvider implements Provider for Paddle Billing.
// Checkout links are transactions; the billing email travels in custom data because
// Paddle only accepts a Paddle customer ID on the transaction itself.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, errors.Join(ErrInvalidProviderEnvironment, fmt.Errorf("paddle environment %q", config.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

// CreateCheckoutLink creates a Paddle transaction for the catalog price and returns its
// hosted checkout URL.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			paddleCustomDataPriceID: req.PriceID,
		},
	}
	if req.Email != "" {
		transactionReq.CustomData[paddleCustomDataEmail] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: ErrNoCheckoutURL.Error(), Err: ErrNoCheckoutURL}
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour).UTC(), // Paddle checkout links expire after 24 hours
	}, nil
}

// ParseWebhook verifies the Paddle-Signature header over the raw payload, then
// normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, errors.Join(ErrWebhookVerificationFailed, ErrMissingSignature)
	}

	// The SDK verifier works on requests, so wrap the untouched bytes in one.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set(p.SignatureHeader(), signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	return normalizePaddleEvent(payload)
}

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleTransaction struct {
	CustomerID string         `json:"customer_id"`
	CustomData map[string]any `json:"custom_data"`
	Items      []struct {
		PriceID string    `json:"price_id"`
		Price   objectRef `json:"price"`
	} `json:"items"`
}

type paddleSubscription struct {
	CustomerID           string     `json:"customer_id"`
	CanceledAt           *time.Time `json:"canceled_at"`
	CurrentBillingPeriod *struct {
		EndsAt *time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
	ScheduledChange *struct {
		EffectiveAt *time.Time `json:"effective_at"`
	} `json:"scheduled_change"`
}

var paddlePriceIDProbes = []probe[paddleTransaction, string]{
	func(t *paddleTransaction) string {
		if len(t.Items) == 0 {
			return ""
		}
		return strings.TrimSpace(t.Items[0].PriceID)
	},
	func(t *paddleTransaction) string {
		if len(t.Items) == 0 {
			return ""
		}
		return t.Items[0].Price.String()
	},
	func(t *paddleTransaction) string { return stringValue(t.CustomData, paddleCustomDataPriceID) },
}

var paddlePeriodEndProbes = []probe[paddleSubscription, *time.Time]{
	func(s *paddleSubscription) *time.Time {
		if s.CurrentBillingPeriod == nil {
			return nil
		}
		return s.CurrentBillingPeriod.EndsAt
	},
	func(s *paddleSubscription) *time.Time {
		if s.ScheduledChange == nil {
			return nil
		}
		return s.ScheduledChange.EffectiveAt
	},
	func(s *paddleSubscription) *time.Time { return s.CanceledAt },
}

func normalizePaddleEvent(payload []byte) (*WebhookEvent, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return &WebhookEvent{DecodeErr: errors.Join(ErrMalformedWebhook, err)}, nil
	}

	out := &WebhookEvent{
		ID:            env.EventID,
		Type:          mapPaddleEventType(env.EventType),
		ProviderEvent: env.EventType,
		OccurredAt:    env.OccurredAt.UTC(),
	}

	switch out.Type {
	case EventPaymentSucceeded:
		var txn paddleTransaction
		if err := decodePaddleData(env.Data, &txn); err != nil {
			out.DecodeErr = err
			return out, nil
		}
		out.Email = strings.TrimSpace(stringValue(txn.CustomData, paddleCustomDataEmail))
		out.PriceID = firstOf(&txn, paddlePriceIDProbes...)
		out.CustomerID = txn.CustomerID

	case EventSubscriptionCancelled:
		var sub paddleSubscription
		if err := decodePaddleData(env.Data, &sub); err != nil {
			out.DecodeErr = err
			return out, nil
		}
		out.CustomerID = sub.CustomerID
		if end := firstOf(&sub, paddlePeriodEndProbes...); end != nil {
			t := end.UTC()
			out.PeriodEnd = &t
		} else if !out.OccurredAt.IsZero() {
			t := out.OccurredAt
			out.PeriodEnd = &t
		}
	}

	return out, nil
}

func decodePaddleData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformedWebhook, err)
	}
	return nil
}

// mapPaddleEventType maps Paddle event types to internal EventType.
func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed":
		return EventPaymentSucceeded
	case "subscription.canceled":
		return EventSubscriptionCancelled
	default:
		// Return the original event as EventType for unmapped events
		return EventType(paddleEvent)
	}
}
