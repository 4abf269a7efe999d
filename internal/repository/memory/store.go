// Package memory is an in-process backend for the repository interfaces.
// It backs STORE_DRIVER=memory and the pipeline tests.
package memory

import (
	"context"
	"sync"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/domain/discussion"
	"learnit-events/internal/domain/outbox"
	"learnit-events/internal/repository"
)

type state struct {
	outbox     map[int64]outbox.OutboxEvent
	processed  map[string]analytics.ProcessedEvent
	aggregates map[int64]analytics.ThreadAggregate
	threads    map[int64]discussion.Thread
	comments   map[int64]discussion.Comment
	votes      map[int64]discussion.Vote

	nextOutboxID  int64
	nextThreadID  int64
	nextCommentID int64
	nextVoteID    int64
}

func newState() *state {
	return &state{
		outbox:     make(map[int64]outbox.OutboxEvent),
		processed:  make(map[string]analytics.ProcessedEvent),
		aggregates: make(map[int64]analytics.ThreadAggregate),
		threads:    make(map[int64]discussion.Thread),
		comments:   make(map[int64]discussion.Comment),
		votes:      make(map[int64]discussion.Vote),
	}
}

func (s *state) clone() *state {
	c := &state{
		outbox:        make(map[int64]outbox.OutboxEvent, len(s.outbox)),
		processed:     make(map[string]analytics.ProcessedEvent, len(s.processed)),
		aggregates:    make(map[int64]analytics.ThreadAggregate, len(s.aggregates)),
		threads:       make(map[int64]discussion.Thread, len(s.threads)),
		comments:      make(map[int64]discussion.Comment, len(s.comments)),
		votes:         make(map[int64]discussion.Vote, len(s.votes)),
		nextOutboxID:  s.nextOutboxID,
		nextThreadID:  s.nextThreadID,
		nextCommentID: s.nextCommentID,
		nextVoteID:    s.nextVoteID,
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	for k, v := range s.aggregates {
		c.aggregates[k] = v
	}
	for k, v := range s.threads {
		c.threads[k] = v
	}
	for k, v := range s.comments {
		c.comments[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	return c
}

type txKey struct{}

type tx struct {
	st *state
}

// Store serializes every unit of work behind one mutex. A transaction works
// on a copy of the committed state and swaps it in on success, so a failed
// transaction leaves no trace.
type Store struct {
	mu        sync.Mutex
	committed *state
	faults    map[string]error
}

var _ repository.Transactor = (*Store)(nil)

func NewStore() *Store {
	return &Store{committed: newState(), faults: make(map[string]error)}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.committed.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	s.committed = t.st
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// FailWith makes every later call of op fail with err until cleared with a
// nil err. op is the repository method name, e.g. "ApplyDelta".
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{store: s}
}

func (s *Store) ProcessedEvents() repository.ProcessedEventRepository {
	return &processedEventRepository{store: s}
}

func (s *Store) Aggregates() repository.ThreadAggregateRepository {
	return &threadAggregateRepository{store: s}
}

func (s *Store) Discussion() repository.DiscussionRepository {
	return &discussionRepository{store: s}
}

// run hands fn the state visible to ctx: the open transaction's copy, or the
// committed state under the store lock.
func (s *Store) run(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		if err := s.faults[op]; err != nil {
			return err
		}
		return fn(t.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[op]; err != nil {
		return err
	}
	return fn(s.committed)
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*tx)
	return ok
}
