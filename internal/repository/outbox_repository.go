package repository

import (
	"context"
	"database/sql"
	"time"

	"learnit-events/internal/domain/outbox"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, event_id, payload, processed, created_at, processed_at, attempt_count, last_error`

type outboxRepository struct {
	store *Store
}

func NewOutboxRepository(store *Store) OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Create(ctx context.Context, event *outbox.OutboxEvent) error {
	execDB, err := r.store.txConn(ctx)
	if err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return execDB.QueryRowContext(ctx, `
        INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, event_id, payload, processed, created_at, attempt_count)
        VALUES ($1,$2,$3,$4,$5,FALSE,$6,0)
        RETURNING id
    `,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.EventID,
		string(event.Payload),
		event.CreatedAt,
	).Scan(&event.ID)
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]outbox.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE processed = FALSE ORDER BY id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.store.conn(ctx).ExecContext(ctx, `
        UPDATE outbox_events
        SET processed = TRUE, processed_at = $1, attempt_count = attempt_count + 1, last_error = NULL
        WHERE id = $2
    `, at, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (int, error) {
	var attempts int
	err := r.store.conn(ctx).QueryRowContext(ctx, `
        UPDATE outbox_events
        SET attempt_count = attempt_count + 1, last_error = $1
        WHERE id = $2
        RETURNING attempt_count
    `, errMsg, id).Scan(&attempts)
	return attempts, err
}

func (r *outboxRepository) ListPersistentFailures(ctx context.Context, threshold int) ([]outbox.OutboxEvent, error) {
	return r.query(ctx, `
        SELECT `+outboxColumns+`
        FROM outbox_events
        WHERE processed = FALSE AND attempt_count >= $1
        ORDER BY id ASC
    `, threshold)
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.store.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE processed = FALSE`).Scan(&n)
	return n, err
}

func (r *outboxRepository) ListProcessedBefore(ctx context.Context, cutoff time.Time) ([]outbox.OutboxEvent, error) {
	return r.query(ctx, `
        SELECT `+outboxColumns+`
        FROM outbox_events
        WHERE processed = TRUE AND processed_at < $1
        ORDER BY id ASC
    `, cutoff)
}

func (r *outboxRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.store.conn(ctx).ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed = TRUE AND id IN (`+buildPlaceholders(1, len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *outboxRepository) query(ctx context.Context, query string, args ...interface{}) ([]outbox.OutboxEvent, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.OutboxEvent
	for rows.Next() {
		var (
			event       outbox.OutboxEvent
			processedAt sql.NullTime
			lastError   sql.NullString
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&event.EventID,
			&event.Payload,
			&event.Processed,
			&event.CreatedAt,
			&processedAt,
			&event.AttemptCount,
			&lastError,
		); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			t := processedAt.Time
			event.ProcessedAt = &t
		}
		if lastError.Valid {
			s := lastError.String
			event.LastError = &s
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
