package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

func TestMemoryStore_Users(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	alice := billing.User{ID: uuid.New(), Email: "alice@example.com", CustomerID: "cus_alice"}
	bob := billing.User{ID: uuid.New(), Email: "bob@example.com"}
	store := billing.NewMemoryStore(alice, bob)

	u, err := store.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = store.FindUserByEmail(ctx, "ALICE@example.com")
	assert.ErrorIs(t, err, billing.ErrUserNotFound, "email match is exact")

	u, err = store.FindUserByCustomerID(ctx, "cus_alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = store.FindUserByCustomerID(ctx, "")
	assert.ErrorIs(t, err, billing.ErrUserNotFound, "empty customer id never matches unlinked users")

	require.NoError(t, store.LinkCustomerID(ctx, bob.ID, "cus_bob"))
	u, err = store.FindUserByCustomerID(ctx, "cus_bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)

	assert.ErrorIs(t, store.LinkCustomerID(ctx, uuid.New(), "cus_x"), billing.ErrUserNotFound)

	store.AddUser(billing.User{ID: uuid.New(), Email: "x@example.com", CustomerID: "cus_bob"})
	_, err = store.FindUserByCustomerID(ctx, "cus_bob")
	assert.ErrorIs(t, err, billing.ErrAmbiguousUser)
}

func TestMemoryStore_Subscriptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()
	store := billing.NewMemoryStore(billing.User{ID: userID, Email: "a@b.com"})

	_, err := store.GetSubscription(ctx, userID)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	_, err = store.DeactivateSubscription(ctx, billing.Deactivation{UserID: userID, EndAt: fixedNow, Now: fixedNow, EventAt: fixedNow})
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound, "deactivate never creates a record")
	assert.Equal(t, 0, store.Count())

	applied, err := store.ActivateSubscription(ctx, billing.Activation{UserID: userID, Plan: starterPlan, Now: fixedNow, EventAt: fixedNow})
	require.NoError(t, err)
	assert.True(t, applied)

	end := fixedNow.Add(time.Hour)
	applied, err = store.DeactivateSubscription(ctx, billing.Deactivation{UserID: userID, EndAt: end, Now: fixedNow, EventAt: fixedNow.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, applied)

	sub, err := store.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.False(t, sub.Active)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, end, *sub.EndDate)

	// Mutating the returned copy must not leak into the store.
	*sub.EndDate = time.Time{}
	again, err := store.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, end, *again.EndDate)

	applied, err = store.ActivateSubscription(ctx, billing.Activation{UserID: userID, Plan: proPlan, Now: fixedNow, EventAt: fixedNow})
	require.NoError(t, err)
	assert.False(t, applied, "activation older than the last applied event is stale")
}

func TestSubscription_QuotaRemaining(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(60), (&billing.Subscription{QuotaLimit: 100, QuotaUsed: 40}).QuotaRemaining())
	assert.Equal(t, int64(0), (&billing.Subscription{QuotaLimit: 100, QuotaUsed: 140}).QuotaRemaining())
	assert.Equal(t, billing.Unlimited, (&billing.Subscription{QuotaLimit: billing.Unlimited, QuotaUsed: 5}).QuotaRemaining())
}
