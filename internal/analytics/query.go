package analytics

import (
	"context"
	"time"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/repository"
)

// QueryService is the read side of the analytics store.
type QueryService struct {
	aggregates   repository.ThreadAggregateRepository
	processed    repository.ProcessedEventRepository
	storeTimeout time.Duration
}

func NewQueryService(aggregates repository.ThreadAggregateRepository, processed repository.ProcessedEventRepository, storeTimeout time.Duration) *QueryService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &QueryService{aggregates: aggregates, processed: processed, storeTimeout: storeTimeout}
}

// GetThread returns ErrNotFound when no event for the thread was applied yet.
func (s *QueryService) GetThread(ctx context.Context, threadID int64) (analytics.ThreadAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.aggregates.Get(ctx, threadID)
}

func (s *QueryService) TopThreadsByCourse(ctx context.Context, courseID int64, limit int) ([]analytics.ThreadAggregate, error) {
	if limit <= 0 {
		return []analytics.ThreadAggregate{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	list, err := s.aggregates.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return analytics.Rank(list, limit), nil
}

// IsProcessed reports whether the event id is already in the ledger, so an
// operator can tell whether a republished event will be dropped.
func (s *QueryService) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.processed.Exists(ctx, eventID)
}
