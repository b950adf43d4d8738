package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Reconciler applies verified provider webhook events to the subscription store.
//
// Only authentication failures are reported to the caller. Every authenticated event
// yields a Result and must be acknowledged, so that data gaps and storage failures never
// turn into provider-side retry storms.
type Reconciler struct {
	provider Provider
	catalog  *Catalog
	users    UserStore
	subs     SubscriptionStore
	deduper  Deduper
	notifier Notifier
	archiver Archiver
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler.
// Panics if a required dependency is nil to fail fast during initialization.
func NewReconciler(provider Provider, catalog *Catalog, users UserStore, subs SubscriptionStore, opts ...ReconcilerOption) *Reconciler {
	if provider == nil {
		panic("billing: Provider is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if users == nil {
		panic("billing: UserStore is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}

	r := &Reconciler{
		provider: provider,
		catalog:  catalog,
		users:    users,
		subs:     subs,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SignatureHeader returns the HTTP header the provider signs webhooks with.
func (r *Reconciler) SignatureHeader() string {
	return r.provider.SignatureHeader()
}

// Reconcile verifies the raw payload, classifies the event and applies the matching
// transition. The returned error is non-nil only when verification failed, in which
// case no store was read or written.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (*Result, error) {
	event, err := r.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		r.logger.WarnContext(ctx, "webhook rejected",
			logger.Provider(r.provider.Name()),
			logger.Error(err),
		)
		return nil, err
	}

	res := &Result{EventID: event.ID, EventType: event.ProviderEvent}
	log := r.logger.With(
		logger.Provider(r.provider.Name()),
		logger.EventID(event.ID),
		logger.EventType(event.ProviderEvent),
	)

	if r.archiver != nil {
		raw := RawEvent{
			Provider:   r.provider.Name(),
			ID:         event.ID,
			Type:       event.ProviderEvent,
			ReceivedAt: r.now().UTC(),
			Payload:    payload,
		}
		if err := r.archiver.Archive(ctx, raw); err != nil {
			log.WarnContext(ctx, "failed to archive webhook payload", logger.Error(err))
		}
	}

	if event.DecodeErr != nil {
		r.abandon(ctx, log, res, ReasonMalformedPayload, logger.Error(event.DecodeErr))
		r.metrics.observeWebhook(r.provider.Name(), event.Type, res)
		return res, nil
	}

	if event.Type != EventPaymentSucceeded && event.Type != EventSubscriptionCancelled {
		res.Outcome = OutcomeIgnored
		log.DebugContext(ctx, "webhook event not handled")
		r.metrics.observeWebhook(r.provider.Name(), event.Type, res)
		return res, nil
	}

	claimed := ""
	if r.deduper != nil {
		key := dedupeKey(r.provider.Name(), event.ID)
		ok, err := r.deduper.Claim(ctx, key)
		switch {
		case err != nil:
			log.WarnContext(ctx, "webhook dedupe unavailable", logger.Error(err))
		case !ok:
			res.Outcome = OutcomeDuplicate
			log.InfoContext(ctx, "webhook event already processed")
			r.metrics.observeWebhook(r.provider.Name(), event.Type, res)
			return res, nil
		default:
			claimed = key
		}
	}

	switch event.Type {
	case EventPaymentSucceeded:
		r.activate(ctx, log, event, res)
	case EventSubscriptionCancelled:
		r.deactivate(ctx, log, event, res)
	}

	if res.Outcome == OutcomeFailed && claimed != "" {
		if err := r.deduper.Release(ctx, claimed); err != nil {
			log.WarnContext(ctx, "failed to release webhook event claim", logger.Error(err))
		}
	}

	r.metrics.observeWebhook(r.provider.Name(), event.Type, res)
	return res, nil
}

func (r *Reconciler) activate(ctx context.Context, log *slog.Logger, event *WebhookEvent, res *Result) {
	email := strings.TrimSpace(event.Email)
	if email == "" {
		r.abandon(ctx, log, res, ReasonMissingEmail)
		return
	}

	priceID := strings.TrimSpace(event.PriceID)
	if priceID == "" {
		r.abandon(ctx, log, res, ReasonMissingPriceID)
		return
	}

	plan, ok := r.catalog.Lookup(priceID)
	if !ok {
		r.abandon(ctx, log, res, ReasonUnknownPriceID, logger.PriceID(priceID))
		return
	}

	user, err := r.users.FindUserByEmail(ctx, email)
	if err != nil {
		r.lookupFailed(ctx, log, res, err)
		return
	}
	log = log.With(logger.UserID(user.ID))

	if customerID := strings.TrimSpace(event.CustomerID); customerID != "" && customerID != user.CustomerID {
		if err := r.users.LinkCustomerID(ctx, user.ID, customerID); err != nil {
			log.WarnContext(ctx, "failed to link provider customer to user",
				logger.CustomerID(customerID),
				logger.Error(err),
			)
		}
	}

	now := r.now().UTC()
	applied, err := r.subs.ActivateSubscription(ctx, Activation{
		UserID:  user.ID,
		Plan:    plan,
		Now:     now,
		EventAt: eventTime(event, now),
	})
	switch {
	case errors.Is(err, ErrUserNotFound):
		// The user was removed between lookup and upsert.
		r.abandon(ctx, log, res, ReasonUserNotFound)
		return
	case err != nil:
		r.storageFailed(ctx, log, res, "subscription activation failed", err)
		return
	}
	if !applied {
		res.Outcome = OutcomeStale
		log.InfoContext(ctx, "activation skipped, a newer event was already applied")
		return
	}

	res.Outcome = OutcomeApplied
	log.InfoContext(ctx, "subscription activated",
		slog.String("plan", plan.Name),
		slog.Int64("quota", plan.Quota),
	)
	if r.notifier != nil {
		r.notified(ctx, log, r.notifier.SubscriptionActivated(ctx, *user, plan))
	}
}

func (r *Reconciler) deactivate(ctx context.Context, log *slog.Logger, event *WebhookEvent, res *Result) {
	customerID := strings.TrimSpace(event.CustomerID)
	if customerID == "" {
		r.abandon(ctx, log, res, ReasonMissingCustomerID)
		return
	}
	log = log.With(logger.CustomerID(customerID))

	user, err := r.users.FindUserByCustomerID(ctx, customerID)
	if err != nil {
		r.lookupFailed(ctx, log, res, err)
		return
	}
	log = log.With(logger.UserID(user.ID))

	now := r.now().UTC()
	endAt := now
	if event.PeriodEnd != nil {
		endAt = event.PeriodEnd.UTC()
	}

	applied, err := r.subs.DeactivateSubscription(ctx, Deactivation{
		UserID:  user.ID,
		EndAt:   endAt,
		Now:     now,
		EventAt: eventTime(event, now),
	})
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		r.abandon(ctx, log, res, ReasonSubscriptionNotFound)
		return
	case err != nil:
		r.storageFailed(ctx, log, res, "subscription deactivation failed", err)
		return
	case !applied:
		res.Outcome = OutcomeStale
		log.InfoContext(ctx, "deactivation skipped, a newer event was already applied")
		return
	}

	res.Outcome = OutcomeApplied
	log.InfoContext(ctx, "subscription deactivated", slog.Time("end_date", endAt))
	if r.notifier != nil {
		r.notified(ctx, log, r.notifier.SubscriptionDeactivated(ctx, *user, endAt))
	}
}

func (r *Reconciler) notified(ctx context.Context, log *slog.Logger, err error) {
	if err != nil {
		log.WarnContext(ctx, "subscription notification failed", logger.Error(err))
	}
}

func (r *Reconciler) lookupFailed(ctx context.Context, log *slog.Logger, res *Result, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		r.abandon(ctx, log, res, ReasonUserNotFound)
	case errors.Is(err, ErrAmbiguousUser):
		r.abandon(ctx, log, res, ReasonAmbiguousUser)
	default:
		r.storageFailed(ctx, log, res, "user lookup failed", err)
	}
}

func (r *Reconciler) abandon(ctx context.Context, log *slog.Logger, res *Result, reason AbandonReason, attrs ...any) {
	res.Outcome = OutcomeAbandoned
	res.Reason = reason
	log.WarnContext(ctx, "webhook transition abandoned", append([]any{logger.Reason(string(reason))}, attrs...)...)
}

func (r *Reconciler) storageFailed(ctx context.Context, log *slog.Logger, res *Result, msg string, err error) {
	res.Outcome = OutcomeFailed
	res.Reason = ReasonStorageError
	log.ErrorContext(ctx, msg, logger.Error(err))
}

// eventTime falls back to now for providers that omit the occurrence time.
func eventTime(event *WebhookEvent, now time.Time) time.Time {
	if event.OccurredAt.IsZero() {
		return now
	}
	return event.OccurredAt.UTC()
}
