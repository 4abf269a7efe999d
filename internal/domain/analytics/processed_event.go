package analytics

import "time"

// ProcessedEvent is one idempotency ledger row. Its presence means the
// event's effect has been committed.
type ProcessedEvent struct {
	EventID    string
	EventType  string
	ReceivedAt time.Time
}
