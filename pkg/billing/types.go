package billing

// Outcome is the result of reconciling one webhook delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"   // event type not handled
	OutcomeAbandoned Outcome = "abandoned" // data gap, see Reason
	OutcomeStale     Outcome = "stale"     // a newer event was already applied
	OutcomeDuplicate Outcome = "duplicate" // event ID already claimed
	OutcomeFailed    Outcome = "failed"    // storage error, logged
)

// AbandonReason explains why a transition was not applied.
type AbandonReason string

const (
	ReasonNone                 AbandonReason = ""
	ReasonMissingEmail         AbandonReason = "missing_email"
	ReasonMissingPriceID       AbandonReason = "missing_price_id"
	ReasonUnknownPriceID       AbandonReason = "unknown_price_id"
	ReasonMissingCustomerID    AbandonReason = "missing_customer_id"
	ReasonUserNotFound         AbandonReason = "user_not_found"
	ReasonAmbiguousUser        AbandonReason = "ambiguous_user"
	ReasonSubscriptionNotFound AbandonReason = "subscription_not_found"
	ReasonMalformedPayload     AbandonReason = "malformed_payload"
	ReasonStorageError         AbandonReason = "storage_error"
)

// Result describes what happened to an authenticated webhook delivery.
// Every Result is acknowledged to the provider.
type Result struct {
	EventID   string
	EventType string
	Outcome   Outcome
	Reason    AbandonReason
}
