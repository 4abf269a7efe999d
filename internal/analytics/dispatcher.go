package analytics

import (
	"context"
	"errors"
	"strings"
	"time"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/events"
	"learnit-events/internal/metrics"
	"learnit-events/internal/repository"
	learnit_errors "learnit-events/pkg/errors"
	"learnit-events/pkg/logger"
)

type Outcome string

const (
	// OutcomeApplied: the event changed an aggregate.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored: recorded but nothing to change (unknown type, comment vote).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate: the event id was already recorded.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDropped: recorded but the payload could not be decoded.
	OutcomeDropped Outcome = "dropped"
	// OutcomeSkipped: no event id, nothing touched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: the store failed and the unit of work was rolled back.
	OutcomeFailed Outcome = "failed"
)

type BatchResult struct {
	Outcomes []Outcome
	Errors   []error
}

func (r BatchResult) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// Dispatcher applies envelopes to thread aggregates exactly once per event id.
type Dispatcher struct {
	tx           repository.Transactor
	processed    repository.ProcessedEventRepository
	aggregates   repository.ThreadAggregateRepository
	storeTimeout time.Duration
	clock        func() time.Time
	log          *logger.Logger
}

func NewDispatcher(tx repository.Transactor, processed repository.ProcessedEventRepository, aggregates repository.ThreadAggregateRepository, storeTimeout time.Duration, log *logger.Logger) *Dispatcher {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		tx:           tx,
		processed:    processed,
		aggregates:   aggregates,
		storeTimeout: storeTimeout,
		clock:        time.Now,
		log:          log.Named("analytics-dispatcher"),
	}
}

// Ingest claims the event id and applies the event in one transaction. A
// returned error means nothing was committed and the event can be retried.
func (d *Dispatcher) Ingest(ctx context.Context, env events.Envelope) (Outcome, error) {
	if env.EventID == "" {
		d.log.Warnf("skipping %s event without eventId", env.EventType)
		metrics.Ingested.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	ctx = logger.WithEventID(ctx, env.EventID)
	log := d.log.Ctx(ctx)

	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	now := d.clock().UTC()
	var outcome Outcome
	err := d.tx.WithinTx(ctx, func(ctx context.Context) error {
		claimed, err := d.processed.Claim(ctx, analytics.ProcessedEvent{
			EventID:    env.EventID,
			EventType:  env.EventType,
			ReceivedAt: now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		ev, err := events.Decode(env)
		if err != nil {
			if errors.Is(err, learnit_errors.ErrMalformedPayload) {
				log.Warnf("dropping %s event: %v", env.EventType, err)
				outcome = OutcomeDropped
				return nil
			}
			return err
		}

		outcome, err = d.apply(ctx, ev, now)
		return err
	})
	if err != nil {
		metrics.IngestErrors.Inc()
		metrics.Ingested.WithLabelValues(string(OutcomeFailed)).Inc()
		log.Errorf("failed to ingest %s event: %v", env.EventType, err)
		return OutcomeFailed, err
	}

	metrics.Ingested.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case OutcomeDuplicate:
		log.Infof("duplicate event, skipping")
	default:
		log.Debugf("processed %s event: %s", env.EventType, outcome)
	}
	return outcome, nil
}

// IngestBatch ingests each envelope on its own; one failure never stops the rest.
func (d *Dispatcher) IngestBatch(ctx context.Context, envs []events.Envelope) BatchResult {
	res := BatchResult{
		Outcomes: make([]Outcome, 0, len(envs)),
		Errors:   make([]error, 0, len(envs)),
	}
	for _, env := range envs {
		o, err := d.Ingest(ctx, env)
		res.Outcomes = append(res.Outcomes, o)
		res.Errors = append(res.Errors, err)
	}
	return res
}

func (d *Dispatcher) apply(ctx context.Context, ev events.Event, at time.Time) (Outcome, error) {
	switch e := ev.(type) {
	case events.ThreadCreated:
		created, err := d.aggregates.CreateIfAbsent(ctx, e.ThreadID, e.CourseID, at)
		if err != nil || !created {
			return OutcomeIgnored, err
		}
		return OutcomeApplied, nil

	case events.CommentAdded:
		return OutcomeApplied, d.aggregates.ApplyDelta(ctx, e.ThreadID, analytics.Delta{Comments: 1}, at)

	case events.ThreadViewed:
		return OutcomeApplied, d.aggregates.ApplyDelta(ctx, e.ThreadID, analytics.Delta{Views: 1}, at)

	case events.VoteCast:
		if !e.IsThreadVote() {
			return OutcomeIgnored, nil
		}
		var delta analytics.Delta
		switch strings.ToUpper(e.VoteType) {
		case events.VoteTypeUpvote:
			delta.Upvotes = 1
		case events.VoteTypeDownvote:
			delta.Downvotes = 1
		default:
			return OutcomeIgnored, nil
		}
		return OutcomeApplied, d.aggregates.ApplyDelta(ctx, e.TargetID, delta, at)

	case events.Unknown:
		d.log.Ctx(ctx).Infof("unknown event type %q, recorded without changes", e.Name)
		return OutcomeIgnored, nil
	}
	return OutcomeIgnored, nil
}
