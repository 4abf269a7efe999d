package outbox

import (
	"time"
)

// Status is derived from Processed; rows never move back to pending once
// delivered.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
)

// DefaultFailureThreshold is the attempt count at which a pending row is
// reported as needing manual intervention.
const DefaultFailureThreshold = 5

// OutboxEvent is one ledger row. Payload holds the serialized envelope.
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	EventID       string
	Payload       []byte
	Processed     bool
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	AttemptCount  int
	LastError     *string
}

func (e OutboxEvent) Status() Status {
	if e.Processed {
		return StatusDelivered
	}
	return StatusPending
}

// IsPersistentFailure reports whether a pending row has failed at least
// threshold times.
func (e OutboxEvent) IsPersistentFailure(threshold int) bool {
	return !e.Processed && e.AttemptCount >= threshold
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
