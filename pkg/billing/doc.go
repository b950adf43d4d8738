// Package billing keeps local subscription records in sync with a payment provider.
//
// Two independent entry points make up the package:
//
//   - Initiator asks the provider for a hosted subscription checkout session and returns
//     its redirect URL. It never touches local storage.
//   - Reconciler consumes signed provider webhooks. It verifies the signature over the
//     raw request body, normalizes the event, resolves the affected user and applies an
//     idempotent activate or deactivate transition to the user's subscription record.
//
// Providers (Stripe, Paddle) hide their SDKs behind the Provider interface and translate
// their payloads into a WebhookEvent. Payload fields that move between API versions are
// read through ordered probe lists; the first non-empty value wins.
//
// Only authentication failures are returned by Reconcile. Data gaps (missing email,
// unknown price, unknown customer) and storage failures are logged, counted and reported
// in the Result, and the delivery is still acknowledged:
//
//	res, err := reconciler.Reconcile(ctx, body, r.Header.Get(reconciler.SignatureHeader()))
//	if err != nil {
//		// 400, the provider will retry
//	}
//	// 200 regardless of res.Outcome
//
// Out-of-order deliveries are resolved by event time: each subscription remembers the
// occurrence time of the last applied event and older events are skipped as stale.
// A Deduper (RedisDeduper) can additionally drop redeliveries of an already applied event.
package billing
