// Package pgstore implements billing.UserStore and billing.SubscriptionStore on PostgreSQL.
package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/pg"
)

// DB is the subset of *pgxpool.Pool (and pgx.Tx) the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrQuery = errors.New("pgstore: query failed")

// Store is a Postgres-backed user and subscription store.
type Store struct {
	db DB
}

var (
	_ billing.UserStore         = (*Store)(nil)
	_ billing.SubscriptionStore = (*Store)(nil)
)

// New creates a Store. Panics if db is nil.
func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Store{db: db}
}

const insertUserQuery = `
INSERT INTO users (email, customer_id)
VALUES ($1, NULLIF($2, ''))
RETURNING id, email, COALESCE(customer_id, '')`

// CreateUser inserts a user record. The users table is owned by the wider
// application; this exists for seeding and tests.
func (s *Store) CreateUser(ctx context.Context, email, customerID string) (*billing.User, error) {
	var u billing.User
	if err := s.db.QueryRow(ctx, insertUserQuery, email, customerID).Scan(&u.ID, &u.Email, &u.CustomerID); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	return &u, nil
}

// At most two rows are read: one is the match, a second one means the key is ambiguous.
const (
	findUserByEmailQuery      = `SELECT id, email, COALESCE(customer_id, '') FROM users WHERE email = $1 LIMIT 2`
	findUserByCustomerIDQuery = `SELECT id, email, COALESCE(customer_id, '') FROM users WHERE customer_id = $1 LIMIT 2`
)

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*billing.User, error) {
	if email == "" {
		return nil, billing.ErrUserNotFound
	}
	return s.findOneUser(ctx, findUserByEmailQuery, email)
}

func (s *Store) FindUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}
	return s.findOneUser(ctx, findUserByCustomerIDQuery, customerID)
}

func (s *Store) findOneUser(ctx context.Context, query string, arg string) (*billing.User, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.User, error) {
		var u billing.User
		err := row.Scan(&u.ID, &u.Email, &u.CustomerID)
		return u, err
	})
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	switch len(users) {
	case 0:
		return nil, billing.ErrUserNotFound
	case 1:
		return &users[0], nil
	default:
		return nil, billing.ErrAmbiguousUser
	}
}

const linkCustomerIDQuery = `UPDATE users SET customer_id = $2 WHERE id = $1`

func (s *Store) LinkCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	tag, err := s.db.Exec(ctx, linkCustomerIDQuery, userID, customerID)
	if err != nil {
		return errors.Join(ErrQuery, err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrUserNotFound
	}
	return nil
}

const getSubscriptionQuery = `
SELECT user_id, active, plan_name, quota_limit, quota_used, price_id,
       start_date, end_date, last_event_at, updated_at
FROM subscriptions
WHERE user_id = $1`

func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	var sub billing.Subscription
	err := s.db.QueryRow(ctx, getSubscriptionQuery, userID).Scan(
		&sub.UserID, &sub.Active, &sub.PlanName, &sub.QuotaLimit, &sub.QuotaUsed, &sub.PriceID,
		&sub.StartDate, &sub.EndDate, &sub.LastEventAt, &sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrQuery, err)
	}
	normalizeTimes(&sub)
	return &sub, nil
}

// The WHERE clause on the conflict branch drops events older than the stored one,
// in which case no row is affected.
const activateSubscriptionQuery = `
INSERT INTO subscriptions (
    user_id, active, plan_name, quota_limit, quota_used, price_id,
    start_date, end_date, last_event_at, updated_at
) VALUES ($1, TRUE, $2, $3, 0, $4, $5, NULL, $6, $5)
ON CONFLICT (user_id) DO UPDATE SET
    active = TRUE,
    plan_name = EXCLUDED.plan_name,
    quota_limit = EXCLUDED.quota_limit,
    quota_used = 0,
    price_id = EXCLUDED.price_id,
    start_date = EXCLUDED.start_date,
    end_date = NULL,
    last_event_at = EXCLUDED.last_event_at,
    updated_at = EXCLUDED.updated_at
WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at`

func (s *Store) ActivateSubscription(ctx context.Context, a billing.Activation) (bool, error) {
	tag, err := s.db.Exec(ctx, activateSubscriptionQuery,
		a.UserID, a.Plan.Name, a.Plan.Quota, a.Plan.PriceID, a.Now.UTC(), a.EventAt.UTC(),
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return false, billing.ErrUserNotFound
		}
		return false, errors.Join(ErrQuery, err)
	}
	return tag.RowsAffected() > 0, nil
}

const (
	deactivateSubscriptionQuery = `
UPDATE subscriptions
SET active = FALSE, end_date = $2, last_event_at = $3, updated_at = $4
WHERE user_id = $1 AND last_event_at <= $3`

	subscriptionExistsQuery = `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1)`
)

func (s *Store) DeactivateSubscription(ctx context.Context, d billing.Deactivation) (bool, error) {
	tag, err := s.db.Exec(ctx, deactivateSubscriptionQuery, d.UserID, d.EndAt.UTC(), d.EventAt.UTC(), d.Now.UTC())
	if err != nil {
		return false, errors.Join(ErrQuery, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing updated: either there is no record or the event is stale.
	var exists bool
	if err := s.db.QueryRow(ctx, subscriptionExistsQuery, d.UserID).Scan(&exists); err != nil {
		return false, errors.Join(ErrQuery, err)
	}
	if !exists {
		return false, billing.ErrSubscriptionNotFound
	}
	return false, nil
}

func normalizeTimes(sub *billing.Subscription) {
	sub.StartDate = sub.StartDate.UTC()
	sub.LastEventAt = sub.LastEventAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	if sub.EndDate != nil {
		end := sub.EndDate.UTC()
		sub.EndDate = &end
	}
}
