package httpdto

import (
	"time"

	"learnit-events/internal/domain/analytics"
)

type ThreadAnalytics struct {
	ThreadID    int64     `json:"thread_id"`
	CourseID    *int64    `json:"course_id"`
	Views       int64     `json:"views"`
	Comments    int64     `json:"comments"`
	Upvotes     int64     `json:"upvotes"`
	Downvotes   int64     `json:"downvotes"`
	Score       int64     `json:"score"`
	LastUpdated time.Time `json:"last_updated"`
}

func NewThreadAnalytics(a analytics.ThreadAggregate) ThreadAnalytics {
	return ThreadAnalytics{
		ThreadID:    a.ThreadID,
		CourseID:    a.CourseID,
		Views:       a.Views,
		Comments:    a.Comments,
		Upvotes:     a.Upvotes,
		Downvotes:   a.Downvotes,
		Score:       a.Score(),
		LastUpdated: a.LastUpdated,
	}
}

type IngestResult struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

type BatchIngestResult struct {
	Accepted int            `json:"accepted"`
	Failed   int            `json:"failed"`
	Results  []IngestResult `json:"results"`
}

type ProcessedStatus struct {
	EventID   string `json:"event_id"`
	Processed bool   `json:"processed"`
}
