package httpdto

import "time"

type OutboxStatus struct {
	Pending            int64         `json:"pending"`
	FailureThreshold   int           `json:"failure_threshold"`
	PersistentFailures []FailedEvent `json:"persistent_failures"`
}

type FailedEvent struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	AggregateID  string    `json:"aggregate_id"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
