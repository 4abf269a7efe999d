package outbox

import (
	"context"
	"time"

	domain "learnit-events/internal/domain/outbox"
	"learnit-events/internal/metrics"
	"learnit-events/internal/repository"
	"learnit-events/pkg/logger"
)

// Archiver stores processed rows before the sweeper deletes them.
type Archiver interface {
	Store(ctx context.Context, cutoff time.Time, rows []domain.OutboxEvent) error
}

type SweeperConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// Sweeper deletes delivered rows older than the retention window. It never
// touches pending rows.
type Sweeper struct {
	repo     repository.OutboxRepository
	archiver Archiver
	cfg      SweeperConfig
	clock    func() time.Time
	log      *logger.Logger
}

// NewSweeper accepts a nil archiver, in which case rows are deleted without
// being archived.
func NewSweeper(repo repository.OutboxRepository, archiver Archiver, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		repo:     repo,
		archiver: archiver,
		cfg:      cfg,
		clock:    time.Now,
		log:      log.Named("outbox-sweeper"),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	for {
		if !wait(ctx, s.cfg.Interval) {
			return
		}
		if _, err := s.SweepOnce(ctx); err != nil {
			s.log.Errorf("outbox sweep failed: %v", err)
		}
	}
}

// SweepOnce returns the number of rows deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock().UTC().Add(-s.cfg.Retention)

	rows, err := s.repo.ListProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		s.log.Debugf("no processed outbox events older than %s", cutoff.Format(time.RFC3339))
		return 0, nil
	}

	if s.archiver != nil {
		if err := s.archiver.Store(ctx, cutoff, rows); err != nil {
			metrics.OutboxArchiveFail.Inc()
			s.log.Warnf("archiving %d outbox events failed, keeping them: %v", len(rows), err)
			return 0, nil
		}
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	metrics.OutboxPurged.Add(float64(deleted))
	s.log.Infof("cleaned up %d old outbox events", deleted)
	return deleted, nil
}
