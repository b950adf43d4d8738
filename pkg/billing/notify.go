package billing

import (
	"context"
	"time"
)

// Notifier is told about applied subscription transitions, e.g. to email the user.
// Errors are logged by the Reconciler and never change the outcome. A redelivered
// event that re-applies notifies again unless a Deduper is configured.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, user User, plan Plan) error
	SubscriptionDeactivated(ctx context.Context, user User, endAt time.Time) error
}
