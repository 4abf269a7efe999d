package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"learnit-events/internal/domain/analytics"
	learnit_errors "learnit-events/pkg/errors"
)

type processedEventRepository struct {
	store *Store
}

func NewProcessedEventRepository(store *Store) ProcessedEventRepository {
	return &processedEventRepository{store: store}
}

func (r *processedEventRepository) Claim(ctx context.Context, ev analytics.ProcessedEvent) (bool, error) {
	res, err := r.store.conn(ctx).ExecContext(ctx, `
        INSERT INTO processed_events (event_id, event_type, received_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (event_id) DO NOTHING
    `, ev.EventID, ev.EventType, ev.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *processedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	return exists, err
}

type threadAggregateRepository struct {
	store *Store
}

func NewThreadAggregateRepository(store *Store) ThreadAggregateRepository {
	return &threadAggregateRepository{store: store}
}

func (r *threadAggregateRepository) CreateIfAbsent(ctx context.Context, threadID int64, courseID *int64, at time.Time) (bool, error) {
	res, err := r.store.conn(ctx).ExecContext(ctx, `
        INSERT INTO thread_aggregates (thread_id, course_id, views, comments, upvotes, downvotes, last_updated)
        VALUES ($1,$2,0,0,0,0,$3)
        ON CONFLICT (thread_id) DO NOTHING
    `, threadID, nullInt64(courseID), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *threadAggregateRepository) ApplyDelta(ctx context.Context, threadID int64, d analytics.Delta, at time.Time) error {
	_, err := r.store.conn(ctx).ExecContext(ctx, `
        INSERT INTO thread_aggregates (thread_id, course_id, views, comments, upvotes, downvotes, last_updated)
        VALUES ($1, NULL, GREATEST($2::bigint,0), GREATEST($3::bigint,0), GREATEST($4::bigint,0), GREATEST($5::bigint,0), $6)
        ON CONFLICT (thread_id) DO UPDATE SET
            views = GREATEST(thread_aggregates.views + $2::bigint, 0),
            comments = GREATEST(thread_aggregates.comments + $3::bigint, 0),
            upvotes = GREATEST(thread_aggregates.upvotes + $4::bigint, 0),
            downvotes = GREATEST(thread_aggregates.downvotes + $5::bigint, 0),
            last_updated = $6
    `, threadID, d.Views, d.Comments, d.Upvotes, d.Downvotes, at)
	return err
}

func (r *threadAggregateRepository) Get(ctx context.Context, threadID int64) (analytics.ThreadAggregate, error) {
	row := r.store.conn(ctx).QueryRowContext(ctx, `
        SELECT thread_id, course_id, views, comments, upvotes, downvotes, last_updated
        FROM thread_aggregates
        WHERE thread_id = $1
    `, threadID)
	agg, err := scanAggregate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return analytics.ThreadAggregate{}, learnit_errors.ErrNotFound
		}
		return analytics.ThreadAggregate{}, err
	}
	return agg, nil
}

func (r *threadAggregateRepository) ListByCourse(ctx context.Context, courseID int64) ([]analytics.ThreadAggregate, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx, `
        SELECT thread_id, course_id, views, comments, upvotes, downvotes, last_updated
        FROM thread_aggregates
        WHERE course_id = $1
        ORDER BY thread_id ASC
    `, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.ThreadAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAggregate treats NULL counters as zero.
func scanAggregate(row rowScanner) (analytics.ThreadAggregate, error) {
	var (
		agg                                 analytics.ThreadAggregate
		courseID                            sql.NullInt64
		views, comments, upvotes, downvotes sql.NullInt64
		lastUpdated                         sql.NullTime
	)
	if err := row.Scan(&agg.ThreadID, &courseID, &views, &comments, &upvotes, &downvotes, &lastUpdated); err != nil {
		return analytics.ThreadAggregate{}, err
	}
	agg.CourseID = int64Ptr(courseID)
	agg.Views = views.Int64
	agg.Comments = comments.Int64
	agg.Upvotes = upvotes.Int64
	agg.Downvotes = downvotes.Int64
	agg.LastUpdated = lastUpdated.Time
	return agg, nil
}
