package billing

import (
	"context"
	"time"
)

// Provider defines the minimal interface for payment provider integrations.
// Implementations use the official provider SDKs and hide payload quirks behind the
// normalized WebhookEvent.
type Provider interface {
	// Name returns a short provider identifier used in logs, metrics and dedupe keys.
	Name() string

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// CreateCheckoutLink creates a hosted subscription checkout session.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// ParseWebhook verifies the signature over the raw payload and only then decodes it.
	// Returns ErrWebhookVerificationFailed (joined with the cause) on any mismatch.
	// Decode failures after verification are reported through WebhookEvent.DecodeErr.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // Provider's price identifier
	Email      string // Pre-filled billing email
	SuccessURL string // Redirect after successful payment
	CancelURL  string // Redirect if customer cancels
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    // Hosted checkout URL
	SessionID string    // Provider's session identifier
	ExpiresAt time.Time // Link expiration, zero if unknown
}

// WebhookEvent is a verified provider event normalized to the fields reconciliation needs.
// Which fields are set depends on Type.
type WebhookEvent struct {
	ID            string    // Provider event ID
	Type          EventType // Normalized event type
	ProviderEvent string    // Original provider event name
	OccurredAt    time.Time

	// Payment succeeded
	Email   string
	PriceID string

	// Both; for payment events it is linked onto the user when present
	CustomerID string

	// Subscription cancelled
	PeriodEnd *time.Time

	// DecodeErr is set when the payload was authentic but its data could not be
	// decoded. Only the fields read before the failure are populated.
	DecodeErr error
}

// EventType represents the normalized billing event type.
// Unmapped provider events keep their original name.
type EventType string

const (
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
)
