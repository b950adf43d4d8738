package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

func TestReconciler_Archiver(t *testing.T) {
	t.Parallel()

	t.Run("archives verified deliveries including ignored ones", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		provider := &mockProvider{}
		archiver := &mockArchiver{}

		payload := []byte(`{"id":"evt_ignored"}`)
		provider.On("ParseWebhook", mock.Anything, payload, "sig").Return(&billing.WebhookEvent{
			ID:            "evt_ignored",
			Type:          "customer.created",
			ProviderEvent: "customer.created",
			OccurredAt:    fixedNow,
		}, nil)
		archiver.On("Archive", mock.Anything, billing.RawEvent{
			Provider:   "mock",
			ID:         "evt_ignored",
			Type:       "customer.created",
			ReceivedAt: fixedNow,
			Payload:    payload,
		}).Return(nil).Once()

		res, err := newTestReconciler(provider, store, store, billing.WithArchiver(archiver)).
			Reconcile(context.Background(), payload, "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.OutcomeIgnored, res.Outcome)
		archiver.AssertExpectations(t)
	})

	t.Run("unverified payloads are not archived", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		provider := &mockProvider{}
		archiver := &mockArchiver{}

		provider.On("ParseWebhook", mock.Anything, mock.Anything, "bad").
			Return(nil, billing.ErrWebhookVerificationFailed)

		_, err := newTestReconciler(provider, store, store, billing.WithArchiver(archiver)).
			Reconcile(context.Background(), []byte(`{}`), "bad")
		require.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
		archiver.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
	})

	t.Run("archive failure does not block the transition", func(t *testing.T) {
		t.Parallel()
		user := billing.User{ID: uuid.New(), Email: "a@b.com"}
		store := billing.NewMemoryStore(user)
		provider := &mockProvider{}
		archiver := &mockArchiver{}

		provider.On("ParseWebhook", mock.Anything, mock.Anything, "sig").
			Return(paymentEvent("evt_a", "a@b.com", proPlan.PriceID, "", fixedNow), nil)
		archiver.On("Archive", mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

		res, err := newTestReconciler(provider, store, store, billing.WithArchiver(archiver)).
			Reconcile(context.Background(), []byte(`{}`), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.OutcomeApplied, res.Outcome)
	})
}
