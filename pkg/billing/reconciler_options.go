package billing

import (
	"log/slog"
	"time"
)

// ReconcilerOption configures a Reconciler instance.
type ReconcilerOption func(*Reconciler)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records every reconciled delivery in m.
func WithMetrics(m *Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithDeduper skips events whose ID was already claimed.
func WithDeduper(d Deduper) ReconcilerOption {
	return func(r *Reconciler) { r.deduper = d }
}

// WithClock overrides the time source used for start dates and update stamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithNotifier sends a notification after every applied transition.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithArchiver stores every verified delivery, handled or not.
func WithArchiver(a Archiver) ReconcilerOption {
	return func(r *Reconciler) { r.archiver = a }
}
