package billing_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) SignatureHeader() string { return "Mock-Signature" }

func (m *mockProvider) CreateCheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutLink), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

// mockStore records every store call; tests that expect no store access give it
// no expectations.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindUserByEmail(ctx context.Context, email string) (*billing.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.User), args.Error(1)
}

func (m *mockStore) FindUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.User), args.Error(1)
}

func (m *mockStore) LinkCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *mockStore) GetSubscription(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockStore) ActivateSubscription(ctx context.Context, a billing.Activation) (bool, error) {
	args := m.Called(ctx, a)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) DeactivateSubscription(ctx context.Context, d billing.Deactivation) (bool, error) {
	args := m.Called(ctx, d)
	return args.Bool(0), args.Error(1)
}

type mockDeduper struct {
	mock.Mock
}

func (m *mockDeduper) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockDeduper) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SubscriptionActivated(ctx context.Context, user billing.User, plan billing.Plan) error {
	return m.Called(ctx, user, plan).Error(0)
}

func (m *mockNotifier) SubscriptionDeactivated(ctx context.Context, user billing.User, endAt time.Time) error {
	return m.Called(ctx, user, endAt).Error(0)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, e billing.RawEvent) error {
	return m.Called(ctx, e).Error(0)
}

var errStoreDown = errors.New("store unavailable")

var (
	starterPlan    = billing.Plan{PriceID: "price_starter_monthly", Name: "starter", Quota: 100}
	proPlan        = billing.Plan{PriceID: "price_pro_monthly", Name: "pro", Quota: 1000}
	enterprisePlan = billing.Plan{PriceID: "price_enterprise_monthly", Name: "enterprise", Quota: billing.Unlimited}
)

func testCatalog() *billing.Catalog {
	return billing.MustCatalog(starterPlan, proPlan, enterprisePlan)
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func paymentEvent(id, email, priceID, customerID string, at time.Time) *billing.WebhookEvent {
	return &billing.WebhookEvent{
		ID:            id,
		Type:          billing.EventPaymentSucceeded,
		ProviderEvent: "checkout.session.completed",
		OccurredAt:    at,
		Email:         email,
		PriceID:       priceID,
		CustomerID:    customerID,
	}
}

func cancelEvent(id, customerID string, periodEnd *time.Time, at time.Time) *billing.WebhookEvent {
	return &billing.WebhookEvent{
		ID:            id,
		Type:          billing.EventSubscriptionCancelled,
		ProviderEvent: "customer.subscription.deleted",
		OccurredAt:    at,
		CustomerID:    customerID,
		PeriodEnd:     periodEnd,
	}
}

func ptr[T any](v T) *T { return &v }
