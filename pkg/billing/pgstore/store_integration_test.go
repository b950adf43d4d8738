//go:build integration

package pgstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/billing/pgstore"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/pg"
)

func setupStore(t *testing.T) (*pgstore.Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("billing_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString: connStr,
		MaxOpenConns:     4,
		RetryAttempts:    3,
		RetryInterval:    time.Second,
		MigrationsTable:  "billing_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, logger.Nop()))
	require.NoError(t, pg.Healthcheck(pool)(ctx))

	return pgstore.New(pool), pool
}

func TestStore(t *testing.T) {
	store, pool := setupStore(t)
	ctx := context.Background()

	pro := billing.Plan{PriceID: "price_pro", Name: "pro", Quota: 1000}
	enterprise := billing.Plan{PriceID: "price_ent", Name: "enterprise", Quota: -1}
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("user lookup", func(t *testing.T) {
		u, err := store.CreateUser(ctx, "lookup@example.com", "")
		require.NoError(t, err)

		found, err := store.FindUserByEmail(ctx, "lookup@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)
		assert.Empty(t, found.CustomerID)

		_, err = store.FindUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, billing.ErrUserNotFound)

		require.NoError(t, store.LinkCustomerID(ctx, u.ID, "cus_lookup"))
		found, err = store.FindUserByCustomerID(ctx, "cus_lookup")
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)

		assert.ErrorIs(t, store.LinkCustomerID(ctx, uuid.New(), "cus_x"), billing.ErrUserNotFound)
	})

	t.Run("duplicate email is ambiguous", func(t *testing.T) {
		_, err := store.CreateUser(ctx, "twice@example.com", "")
		require.NoError(t, err)
		_, err = store.CreateUser(ctx, "twice@example.com", "")
		require.NoError(t, err)

		_, err = store.FindUserByEmail(ctx, "twice@example.com")
		assert.ErrorIs(t, err, billing.ErrAmbiguousUser)
	})

	t.Run("activation lifecycle", func(t *testing.T) {
		u, err := store.CreateUser(ctx, "life@example.com", "cus_life")
		require.NoError(t, err)

		_, err = store.GetSubscription(ctx, u.ID)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

		applied, err := store.ActivateSubscription(ctx, billing.Activation{UserID: u.ID, Plan: pro, Now: t0, EventAt: t0})
		require.NoError(t, err)
		assert.True(t, applied)

		_, err = pool.Exec(ctx, `UPDATE subscriptions SET quota_used = 42 WHERE user_id = $1`, u.ID)
		require.NoError(t, err)

		// Redelivery of the same event re-applies and resets usage.
		applied, err = store.ActivateSubscription(ctx, billing.Activation{UserID: u.ID, Plan: pro, Now: t0, EventAt: t0})
		require.NoError(t, err)
		assert.True(t, applied)

		sub, err := store.GetSubscription(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, sub.Active)
		assert.Equal(t, "pro", sub.PlanName)
		assert.Equal(t, int64(1000), sub.QuotaLimit)
		assert.Equal(t, int64(0), sub.QuotaUsed)
		assert.Equal(t, "price_pro", sub.PriceID)
		assert.True(t, t0.Equal(sub.StartDate))
		assert.Nil(t, sub.EndDate)

		end := t0.Add(30 * 24 * time.Hour)
		t1 := t0.Add(time.Hour)
		applied, err = store.DeactivateSubscription(ctx, billing.Deactivation{UserID: u.ID, EndAt: end, Now: t1, EventAt: t1})
		require.NoError(t, err)
		assert.True(t, applied)

		sub, err = store.GetSubscription(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, sub.Active)
		require.NotNil(t, sub.EndDate)
		assert.True(t, end.Equal(*sub.EndDate))
		assert.Equal(t, "pro", sub.PlanName)

		// An activation older than the cancellation is stale.
		applied, err = store.ActivateSubscription(ctx, billing.Activation{UserID: u.ID, Plan: enterprise, Now: t1, EventAt: t0})
		require.NoError(t, err)
		assert.False(t, applied)

		sub, err = store.GetSubscription(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, sub.Active)

		t2 := t1.Add(time.Hour)
		applied, err = store.ActivateSubscription(ctx, billing.Activation{UserID: u.ID, Plan: enterprise, Now: t2, EventAt: t2})
		require.NoError(t, err)
		assert.True(t, applied)

		sub, err = store.GetSubscription(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, sub.Active)
		assert.Nil(t, sub.EndDate)
		assert.Equal(t, int64(-1), sub.QuotaLimit)

		applied, err = store.DeactivateSubscription(ctx, billing.Deactivation{UserID: u.ID, EndAt: end, Now: t2, EventAt: t1})
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("missing records", func(t *testing.T) {
		_, err := store.ActivateSubscription(ctx, billing.Activation{UserID: uuid.New(), Plan: pro, Now: t0, EventAt: t0})
		assert.ErrorIs(t, err, billing.ErrUserNotFound)

		u, err := store.CreateUser(ctx, "nosub@example.com", "cus_nosub")
		require.NoError(t, err)
		_, err = store.DeactivateSubscription(ctx, billing.Deactivation{UserID: u.ID, EndAt: t0, Now: t0, EventAt: t0})
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}
