package billing

import (
	"context"
	"time"
)

// RawEvent is a verified webhook delivery exactly as the provider signed it.
type RawEvent struct {
	Provider   string
	ID         string
	Type       string // provider event type
	ReceivedAt time.Time
	Payload    []byte
}

// Archiver keeps verified deliveries for audit and replay. Archive failures are logged
// and never affect reconciliation.
type Archiver interface {
	Archive(ctx context.Context, event RawEvent) error
}
