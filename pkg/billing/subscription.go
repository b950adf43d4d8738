package billing

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of the user record this service reads.
// CustomerID is the payment provider's customer identifier; empty until linked.
type User struct {
	ID         uuid.UUID
	Email      string
	CustomerID string
}

// Subscription is the per-user billing state. UserID is the primary key.
//
// Active implies EndDate == nil; inactive implies EndDate is set.
type Subscription struct {
	UserID      uuid.UUID
	Active      bool
	PlanName    string
	QuotaLimit  int64
	QuotaUsed   int64
	PriceID     string
	StartDate   time.Time
	EndDate     *time.Time
	LastEventAt time.Time // occurrence time of the last applied provider event
	UpdatedAt   time.Time
}

// Activation describes an activate transition for a user.
type Activation struct {
	UserID  uuid.UUID
	Plan    Plan
	Now     time.Time
	EventAt time.Time
}

// Deactivation describes a deactivate transition for a user.
type Deactivation struct {
	UserID  uuid.UUID
	EndAt   time.Time
	Now     time.Time
	EventAt time.Time
}

// applyActivation overwrites s with the activated state.
func (s *Subscription) applyActivation(a Activation) {
	s.UserID = a.UserID
	s.Active = true
	s.PlanName = a.Plan.Name
	s.QuotaLimit = a.Plan.Quota
	s.QuotaUsed = 0
	s.PriceID = a.Plan.PriceID
	s.StartDate = a.Now.UTC()
	s.EndDate = nil
	s.LastEventAt = a.EventAt.UTC()
	s.UpdatedAt = a.Now.UTC()
}

// applyDeactivation marks s inactive ending at d.EndAt.
func (s *Subscription) applyDeactivation(d Deactivation) {
	end := d.EndAt.UTC()
	s.Active = false
	s.EndDate = &end
	s.LastEventAt = d.EventAt.UTC()
	s.UpdatedAt = d.Now.UTC()
}

// acceptsEventAt reports whether an event that occurred at t may still change s.
// Events older than the last applied one are stale.
func (s *Subscription) acceptsEventAt(t time.Time) bool {
	return !t.Before(s.LastEventAt)
}

// QuotaRemaining returns how much of the plan quota is left, or Unlimited.
func (s *Subscription) QuotaRemaining() int64 {
	if s.QuotaLimit == Unlimited {
		return Unlimited
	}
	return max(s.QuotaLimit-s.QuotaUsed, 0)
}
