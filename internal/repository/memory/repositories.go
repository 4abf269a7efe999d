package memory

import (
	"context"
	"sort"
	"time"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/domain/discussion"
	"learnit-events/internal/domain/outbox"
	learnit_errors "learnit-events/pkg/errors"
)

type outboxRepository struct {
	store *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *outbox.OutboxEvent) error {
	if !inTx(ctx) {
		return learnit_errors.ErrTxRequired
	}
	return r.store.run(ctx, "Create", func(st *state) error {
		st.nextOutboxID++
		event.ID = st.nextOutboxID
		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		event.Processed = false
		event.ProcessedAt = nil
		event.AttemptCount = 0
		event.LastError = nil
		row := *event
		row.Payload = append([]byte(nil), event.Payload...)
		st.outbox[row.ID] = row
		return nil
	})
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]outbox.OutboxEvent, error) {
	var out []outbox.OutboxEvent
	err := r.store.run(ctx, "ListPending", func(st *state) error {
		out = filterOutbox(st, func(e outbox.OutboxEvent) bool { return !e.Processed })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.store.run(ctx, "MarkPublished", func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return nil
		}
		e.Processed = true
		e.ProcessedAt = &at
		e.AttemptCount++
		e.LastError = nil
		st.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (int, error) {
	var attempts int
	err := r.store.run(ctx, "MarkFailed", func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		e.AttemptCount++
		msg := errMsg
		e.LastError = &msg
		st.outbox[id] = e
		attempts = e.AttemptCount
		return nil
	})
	return attempts, err
}

func (r *outboxRepository) ListPersistentFailures(ctx context.Context, threshold int) ([]outbox.OutboxEvent, error) {
	var out []outbox.OutboxEvent
	err := r.store.run(ctx, "ListPersistentFailures", func(st *state) error {
		out = filterOutbox(st, func(e outbox.OutboxEvent) bool { return e.IsPersistentFailure(threshold) })
		return nil
	})
	return out, err
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.store.run(ctx, "CountPending", func(st *state) error {
		for _, e := range st.outbox {
			if !e.Processed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *outboxRepository) ListProcessedBefore(ctx context.Context, cutoff time.Time) ([]outbox.OutboxEvent, error) {
	var out []outbox.OutboxEvent
	err := r.store.run(ctx, "ListProcessedBefore", func(st *state) error {
		out = filterOutbox(st, func(e outbox.OutboxEvent) bool {
			return e.Processed && e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff)
		})
		return nil
	})
	return out, err
}

func (r *outboxRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := r.store.run(ctx, "DeleteByIDs", func(st *state) error {
		for _, id := range ids {
			if e, ok := st.outbox[id]; ok && e.Processed {
				delete(st.outbox, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func filterOutbox(st *state, keep func(outbox.OutboxEvent) bool) []outbox.OutboxEvent {
	var out []outbox.OutboxEvent
	for _, e := range st.outbox {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type processedEventRepository struct {
	store *Store
}

func (r *processedEventRepository) Claim(ctx context.Context, ev analytics.ProcessedEvent) (bool, error) {
	var claimed bool
	err := r.store.run(ctx, "Claim", func(st *state) error {
		if _, exists := st.processed[ev.EventID]; exists {
			return nil
		}
		st.processed[ev.EventID] = ev
		claimed = true
		return nil
	})
	return claimed, err
}

func (r *processedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.store.run(ctx, "Exists", func(st *state) error {
		_, exists = st.processed[eventID]
		return nil
	})
	return exists, err
}

type threadAggregateRepository struct {
	store *Store
}

func (r *threadAggregateRepository) CreateIfAbsent(ctx context.Context, threadID int64, courseID *int64, at time.Time) (bool, error) {
	var created bool
	err := r.store.run(ctx, "CreateIfAbsent", func(st *state) error {
		if _, ok := st.aggregates[threadID]; ok {
			return nil
		}
		st.aggregates[threadID] = analytics.NewThreadAggregate(threadID, copyInt64(courseID), at)
		created = true
		return nil
	})
	return created, err
}

func (r *threadAggregateRepository) ApplyDelta(ctx context.Context, threadID int64, d analytics.Delta, at time.Time) error {
	return r.store.run(ctx, "ApplyDelta", func(st *state) error {
		agg, ok := st.aggregates[threadID]
		if !ok {
			agg = analytics.NewThreadAggregate(threadID, nil, at)
		}
		st.aggregates[threadID] = agg.Apply(d, at)
		return nil
	})
}

func (r *threadAggregateRepository) Get(ctx context.Context, threadID int64) (analytics.ThreadAggregate, error) {
	var agg analytics.ThreadAggregate
	err := r.store.run(ctx, "Get", func(st *state) error {
		a, ok := st.aggregates[threadID]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		agg = a
		agg.CourseID = copyInt64(a.CourseID)
		return nil
	})
	return agg, err
}

func (r *threadAggregateRepository) ListByCourse(ctx context.Context, courseID int64) ([]analytics.ThreadAggregate, error) {
	var out []analytics.ThreadAggregate
	err := r.store.run(ctx, "ListByCourse", func(st *state) error {
		for _, a := range st.aggregates {
			if a.CourseID != nil && *a.CourseID == courseID {
				a.CourseID = copyInt64(a.CourseID)
				out = append(out, a)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
		return nil
	})
	return out, err
}

type discussionRepository struct {
	store *Store
}

func (r *discussionRepository) CreateThread(ctx context.Context, t *discussion.Thread) error {
	return r.store.run(ctx, "CreateThread", func(st *state) error {
		st.nextThreadID++
		t.ID = st.nextThreadID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		t.UpdatedAt = t.CreatedAt
		if t.Status == "" {
			t.Status = discussion.StatusActive
		}
		if t.Category == "" {
			t.Category = discussion.CategoryGeneral
		}
		t.LastActivityAt.Time, t.LastActivityAt.Valid = t.CreatedAt, true
		st.threads[t.ID] = *t
		return nil
	})
}

func (r *discussionRepository) GetThread(ctx context.Context, id int64) (discussion.Thread, error) {
	var t discussion.Thread
	err := r.store.run(ctx, "GetThread", func(st *state) error {
		found, ok := st.threads[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		t = found
		return nil
	})
	return t, err
}

func (r *discussionRepository) SetThreadLocked(ctx context.Context, id int64, locked bool) error {
	return r.store.run(ctx, "SetThreadLocked", func(st *state) error {
		t, ok := st.threads[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		t.IsLocked = locked
		t.UpdatedAt = time.Now().UTC()
		st.threads[id] = t
		return nil
	})
}

func (r *discussionRepository) AdjustThreadCounters(ctx context.Context, id int64, views, replies, upvotes, downvotes int64, at time.Time) error {
	return r.store.run(ctx, "AdjustThreadCounters", func(st *state) error {
		t, ok := st.threads[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		t.ViewCount = clamp(t.ViewCount + views)
		t.ReplyCount = clamp(t.ReplyCount + replies)
		t.Upvotes = clamp(t.Upvotes + upvotes)
		t.Downvotes = clamp(t.Downvotes + downvotes)
		t.UpdatedAt = at
		if replies != 0 {
			t.LastActivityAt.Time, t.LastActivityAt.Valid = at, true
		}
		st.threads[id] = t
		return nil
	})
}

func (r *discussionRepository) CreateComment(ctx context.Context, c *discussion.Comment) error {
	return r.store.run(ctx, "CreateComment", func(st *state) error {
		st.nextCommentID++
		c.ID = st.nextCommentID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		st.comments[c.ID] = *c
		return nil
	})
}

func (r *discussionRepository) GetComment(ctx context.Context, id int64) (discussion.Comment, error) {
	var c discussion.Comment
	err := r.store.run(ctx, "GetComment", func(st *state) error {
		found, ok := st.comments[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		c = found
		return nil
	})
	return c, err
}

func (r *discussionRepository) AdjustCommentVotes(ctx context.Context, id int64, upvotes, downvotes int64) error {
	return r.store.run(ctx, "AdjustCommentVotes", func(st *state) error {
		c, ok := st.comments[id]
		if !ok {
			return learnit_errors.ErrNotFound
		}
		c.Upvotes = clamp(c.Upvotes + upvotes)
		c.Downvotes = clamp(c.Downvotes + downvotes)
		st.comments[id] = c
		return nil
	})
}

func (r *discussionRepository) CreateVote(ctx context.Context, v *discussion.Vote) error {
	return r.store.run(ctx, "CreateVote", func(st *state) error {
		for _, existing := range st.votes {
			if existing.UserID == v.UserID && existing.TargetType == v.TargetType && existing.TargetID == v.TargetID {
				return learnit_errors.ErrAlreadyExists
			}
		}
		st.nextVoteID++
		v.ID = st.nextVoteID
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		st.votes[v.ID] = *v
		return nil
	})
}

func (r *discussionRepository) GetVote(ctx context.Context, userID int64, targetType string, targetID int64) (discussion.Vote, error) {
	var v discussion.Vote
	err := r.store.run(ctx, "GetVote", func(st *state) error {
		for _, existing := range st.votes {
			if existing.UserID == userID && existing.TargetType == targetType && existing.TargetID == targetID {
				v = existing
				return nil
			}
		}
		return learnit_errors.ErrNotFound
	})
	return v, err
}

func (r *discussionRepository) DeleteVote(ctx context.Context, id int64) error {
	return r.store.run(ctx, "DeleteVote", func(st *state) error {
		if _, ok := st.votes[id]; !ok {
			return learnit_errors.ErrNotFound
		}
		delete(st.votes, id)
		return nil
	})
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
