package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "learnit-events/internal/domain/outbox"
	"learnit-events/internal/events"
	"learnit-events/internal/repository"
	"learnit-events/pkg/logger"

	"github.com/google/uuid"
)

// Writer appends envelopes to the outbox inside the caller's transaction.
// It never talks to the bus.
type Writer struct {
	repo          repository.OutboxRepository
	sourceService string
	clock         func() time.Time
	newSuffix     func() string
	log           *logger.Logger
}

type WriterOption func(*Writer)

func WithClock(clock func() time.Time) WriterOption {
	return func(w *Writer) { w.clock = clock }
}

func WithSourceService(name string) WriterOption {
	return func(w *Writer) {
		if name != "" {
			w.sourceService = name
		}
	}
}

func WithWriterLogger(log *logger.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

func NewWriter(repo repository.OutboxRepository, opts ...WriterOption) *Writer {
	w := &Writer{
		repo:          repo,
		sourceService: events.DefaultSourceService,
		clock:         time.Now,
		newSuffix:     randomSuffix,
		log:           logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append must be called with the ctx of an open transaction; otherwise it
// fails with ErrTxRequired. Any error should make the caller roll back.
func (w *Writer) Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]any) error {
	env := events.Envelope{
		EventType:     eventType,
		EventID:       NewEventID(eventType, aggregateID, w.newSuffix()),
		OccurredAt:    w.clock().UTC(),
		SchemaVersion: events.CurrentSchemaVersion,
		SourceService: w.sourceService,
		Payload:       payload,
	}
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}

	data, err := json.Marshal(env)
	if err != nil {
		w.log.Errorf("failed to serialize %s envelope for %s:%s: %v", eventType, aggregateType, aggregateID, err)
		return fmt.Errorf("serialize envelope: %w", err)
	}

	row := &domain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventID:       env.EventID,
		Payload:       data,
		CreatedAt:     env.OccurredAt,
	}
	if err := w.repo.Create(ctx, row); err != nil {
		return err
	}
	w.log.Debugf("created outbox event %s for %s:%s", env.EventID, aggregateType, aggregateID)
	return nil
}

// NewEventID formats {eventType}-{aggregateID}-{suffix}.
func NewEventID(eventType, aggregateID, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", eventType, aggregateID, suffix)
}

// randomSuffix is the first 8 hex characters of a random UUID, giving 32
// bits of randomness. Uniqueness only needs to hold per aggregate.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
