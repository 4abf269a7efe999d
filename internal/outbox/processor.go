package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	domain "learnit-events/internal/domain/outbox"
	"learnit-events/internal/events"
	"learnit-events/internal/metrics"
	"learnit-events/internal/repository"
	"learnit-events/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

type ProcessorConfig struct {
	Topic            string
	StartupDelay     time.Duration
	Interval         time.Duration
	BatchSize        int
	Workers          int
	PublishTimeout   time.Duration
	StoreTimeout     time.Duration
	FailureThreshold int
	BreakerTimeout   time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Topic:            events.DefaultTopic,
		StartupDelay:     10 * time.Second,
		Interval:         5 * time.Second,
		BatchSize:        0,
		Workers:          1,
		PublishTimeout:   5 * time.Second,
		StoreTimeout:     5 * time.Second,
		FailureThreshold: domain.DefaultFailureThreshold,
		BreakerTimeout:   30 * time.Second,
	}
}

// RunResult counts the rows handled by one publisher run. Skipped rows were
// left untouched because the breaker was open.
type RunResult struct {
	Published int
	Failed    int
	Skipped   int
}

var errRunFailed = errors.New("no pending event could be published")

// Processor drains pending outbox rows to the bus. Runs never overlap: the
// next one starts Interval after the previous one finished.
type Processor struct {
	repo      repository.OutboxRepository
	publisher events.Publisher
	breaker   *gobreaker.CircuitBreaker
	cfg       ProcessorConfig
	clock     func() time.Time
	log       *logger.Logger
}

func NewProcessor(repo repository.OutboxRepository, publisher events.Publisher, cfg ProcessorConfig, log *logger.Logger) *Processor {
	def := DefaultProcessorConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("outbox-publisher")

	p := &Processor{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		clock:     time.Now,
		log:       log,
	}
	// The breaker counts runs, not rows: a run fails only when nothing in it
	// could be published.
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-bus",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
			if to == gobreaker.StateOpen {
				metrics.BreakerOpen.Inc()
			}
		},
	})
	return p
}

// Run blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	if !wait(ctx, p.cfg.StartupDelay) {
		return
	}
	for {
		p.RunOnce(ctx)
		if !wait(ctx, p.cfg.Interval) {
			return
		}
	}
}

// RunOnce publishes every pending row (up to BatchSize) once. A failing row
// never stops the rest of the run. While the breaker is open the run is
// skipped and no attempt is recorded.
func (p *Processor) RunOnce(ctx context.Context) RunResult {
	metrics.OutboxRuns.Inc()

	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	pending, err := p.repo.ListPending(sctx, p.cfg.BatchSize)
	cancel()
	if err != nil {
		p.log.Errorf("error in outbox publisher loop: %v", err)
		return RunResult{}
	}
	if len(pending) == 0 {
		p.log.Debugf("no pending outbox events to publish")
		p.refreshGauges(ctx)
		return RunResult{}
	}

	var res RunResult
	_, err = p.breaker.Execute(func() (interface{}, error) {
		res = p.publishPending(ctx, pending)
		if res.Published == 0 && res.Failed > 0 {
			return nil, errRunFailed
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.log.Warnf("bus unavailable, skipping %d pending events: %v", len(pending), err)
		p.refreshGauges(ctx)
		return RunResult{Skipped: len(pending)}
	}

	metrics.OutboxPublished.Add(float64(res.Published))
	metrics.OutboxFailed.Add(float64(res.Failed))
	p.log.Infof("published %d events, %d failed", res.Published, res.Failed)

	if res.Failed > 0 {
		p.checkPersistentFailures(ctx)
	}
	p.refreshGauges(ctx)
	return res
}

func (p *Processor) publishPending(ctx context.Context, pending []domain.OutboxEvent) RunResult {
	p.log.Infof("found %d pending outbox events, publishing", len(pending))

	var published, failed atomic.Int64
	publishAll := func(ctx context.Context, rows []domain.OutboxEvent) {
		for _, row := range rows {
			if ctx.Err() != nil {
				return
			}
			if p.publishRow(ctx, row) {
				published.Add(1)
			} else {
				failed.Add(1)
			}
		}
	}

	if p.cfg.Workers <= 1 {
		publishAll(ctx, pending)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Workers)
		for _, part := range partitionByAggregate(pending) {
			part := part
			g.Go(func() error {
				publishAll(gctx, part)
				return nil
			})
		}
		_ = g.Wait()
	}
	return RunResult{Published: int(published.Load()), Failed: int(failed.Load())}
}

// PendingCount is the number of rows still waiting to be delivered.
func (p *Processor) PendingCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.repo.CountPending(ctx)
}

// PersistentFailures lists pending rows at or above the failure threshold.
func (p *Processor) PersistentFailures(ctx context.Context) ([]domain.OutboxEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.repo.ListPersistentFailures(ctx, p.cfg.FailureThreshold)
}

func (p *Processor) FailureThreshold() int {
	return p.cfg.FailureThreshold
}

func (p *Processor) publishRow(ctx context.Context, row domain.OutboxEvent) bool {
	msg := events.Message{
		Topic: p.cfg.Topic,
		Key:   row.AggregateID,
		ID:    row.EventID,
		Body:  row.Payload,
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	err := p.publisher.Publish(pctx, msg)
	cancel()
	if err != nil {
		p.handleFailure(ctx, row, err)
		return false
	}

	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if err := p.repo.MarkPublished(sctx, row.ID, p.clock().UTC()); err != nil {
		// The bus has the message; the row is republished next run and the
		// consumer drops the duplicate.
		p.log.Errorf("published event %d but could not mark it processed: %v", row.ID, err)
		return false
	}
	p.log.Debugf("published event %d: %s", row.ID, row.EventType)
	return true
}

func (p *Processor) handleFailure(ctx context.Context, row domain.OutboxEvent, cause error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	attempts, err := p.repo.MarkFailed(ctx, row.ID, cause.Error())
	if err != nil {
		p.log.Errorf("failed to record publish failure for event %d: %v", row.ID, err)
		return
	}
	p.log.Warnf("failed to publish event %d (attempt %d): %v", row.ID, attempts, cause)
	if attempts >= p.cfg.FailureThreshold {
		p.log.Errorf("event %d has failed %d times, requires manual intervention: %s", row.ID, attempts, row.EventType)
	}
}

func (p *Processor) checkPersistentFailures(ctx context.Context) {
	failures, err := p.PersistentFailures(ctx)
	if err != nil {
		p.log.Errorf("failed to list persistent failures: %v", err)
		return
	}
	metrics.OutboxPersistentFailures.Set(float64(len(failures)))
	if len(failures) == 0 {
		return
	}
	p.log.Warnf("found %d events with %d or more failed attempts", len(failures), p.cfg.FailureThreshold)
	for _, e := range failures {
		lastError := ""
		if e.LastError != nil {
			lastError = *e.LastError
		}
		p.log.Warnf("persistently failing event: id=%d, type=%s, attempts=%d, error=%s", e.ID, e.EventType, e.AttemptCount, lastError)
	}
}

func (p *Processor) refreshGauges(ctx context.Context) {
	n, err := p.PendingCount(ctx)
	if err != nil {
		p.log.Warnf("failed to count pending outbox events: %v", err)
		return
	}
	metrics.OutboxPending.Set(float64(n))

	failures, err := p.PersistentFailures(ctx)
	if err != nil {
		p.log.Warnf("failed to list persistent failures: %v", err)
		return
	}
	metrics.OutboxPersistentFailures.Set(float64(len(failures)))
}

// partitionByAggregate groups rows per aggregate id, keeping id order inside
// each group and ordering groups by their first row.
func partitionByAggregate(rows []domain.OutboxEvent) [][]domain.OutboxEvent {
	index := make(map[string]int)
	var parts [][]domain.OutboxEvent
	for _, row := range rows {
		i, ok := index[row.AggregateID]
		if !ok {
			i = len(parts)
			index[row.AggregateID] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], row)
	}
	return parts
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
