package billing

import (
	"context"

	"github.com/google/uuid"
)

// UserStore resolves users for webhook reconciliation.
type UserStore interface {
	// FindUserByEmail returns the single user with exactly this email.
	// Returns ErrUserNotFound or ErrAmbiguousUser.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// FindUserByCustomerID returns the single user linked to the provider customer ID.
	// Returns ErrUserNotFound or ErrAmbiguousUser.
	FindUserByCustomerID(ctx context.Context, customerID string) (*User, error)

	// LinkCustomerID stores the provider customer ID on the user.
	LinkCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
}

// SubscriptionStore persists subscriptions. One record per user; UserID is the key.
// Implementations must apply each transition atomically.
type SubscriptionStore interface {
	// GetSubscription returns ErrSubscriptionNotFound if the user has none.
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// ActivateSubscription inserts or overwrites the user's subscription.
	// It reports false without error when a newer event was already applied.
	ActivateSubscription(ctx context.Context, a Activation) (bool, error)

	// DeactivateSubscription updates an existing subscription only.
	// Returns ErrSubscriptionNotFound when there is nothing to update and
	// false without error when a newer event was already applied.
	DeactivateSubscription(ctx context.Context, d Deactivation) (bool, error)
}
