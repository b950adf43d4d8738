package billing

import "errors"

var (
	ErrInvalidCatalog = errors.New("invalid billing plan catalog")
	ErrPlanNotFound   = errors.New("billing plan not found")

	ErrUserNotFound         = errors.New("user not found")
	ErrAmbiguousUser        = errors.New("more than one user matches")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	ErrMissingEmail   = errors.New("email is required")
	ErrMissingPriceID = errors.New("price ID is required")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrUnknownProvider            = errors.New("unknown billing provider")
	ErrProviderError              = errors.New("billing provider error")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrMissingSignature           = errors.New("webhook signature header is missing")
	ErrMalformedWebhook           = errors.New("malformed webhook payload")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
)

// ProviderError carries the message reported by the payment provider so it can be
// surfaced to the caller unchanged.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ErrProviderError.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProviderError) match any provider failure.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderError }
