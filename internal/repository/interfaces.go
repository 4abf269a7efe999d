package repository

import (
	"context"
	"time"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/domain/discussion"
	"learnit-events/internal/domain/outbox"
)

// Transactor opens a unit of work. Repositories called with the ctx handed
// to fn take part in it; returning an error from fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OutboxRepository interface {
	// Create requires a transaction on ctx and fails with ErrTxRequired otherwise.
	Create(ctx context.Context, event *outbox.OutboxEvent) error
	// ListPending returns unprocessed rows in id order; limit <= 0 means all.
	ListPending(ctx context.Context, limit int) ([]outbox.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	// MarkFailed bumps attempt_count, records the error and returns the new count.
	MarkFailed(ctx context.Context, id int64, errMsg string) (int, error)
	ListPersistentFailures(ctx context.Context, threshold int) ([]outbox.OutboxEvent, error)
	CountPending(ctx context.Context) (int64, error)
	ListProcessedBefore(ctx context.Context, cutoff time.Time) ([]outbox.OutboxEvent, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

type ProcessedEventRepository interface {
	// Claim inserts the ledger row and reports whether this call created it.
	Claim(ctx context.Context, ev analytics.ProcessedEvent) (bool, error)
	// Exists is a read-only ledger lookup for operators; ingestion relies on Claim.
	Exists(ctx context.Context, eventID string) (bool, error)
}

type ThreadAggregateRepository interface {
	// CreateIfAbsent leaves an existing aggregate untouched and reports
	// whether it inserted one.
	CreateIfAbsent(ctx context.Context, threadID int64, courseID *int64, at time.Time) (bool, error)
	// ApplyDelta creates the aggregate with zero counters when missing and
	// adds d atomically.
	ApplyDelta(ctx context.Context, threadID int64, d analytics.Delta, at time.Time) error
	Get(ctx context.Context, threadID int64) (analytics.ThreadAggregate, error)
	ListByCourse(ctx context.Context, courseID int64) ([]analytics.ThreadAggregate, error)
}

type DiscussionRepository interface {
	CreateThread(ctx context.Context, t *discussion.Thread) error
	GetThread(ctx context.Context, id int64) (discussion.Thread, error)
	SetThreadLocked(ctx context.Context, id int64, locked bool) error
	// AdjustThreadCounters adds the given amounts, clamping at zero.
	AdjustThreadCounters(ctx context.Context, id int64, views, replies, upvotes, downvotes int64, at time.Time) error

	CreateComment(ctx context.Context, c *discussion.Comment) error
	GetComment(ctx context.Context, id int64) (discussion.Comment, error)
	AdjustCommentVotes(ctx context.Context, id int64, upvotes, downvotes int64) error

	CreateVote(ctx context.Context, v *discussion.Vote) error
	GetVote(ctx context.Context, userID int64, targetType string, targetID int64) (discussion.Vote, error)
	DeleteVote(ctx context.Context, id int64) error
}
