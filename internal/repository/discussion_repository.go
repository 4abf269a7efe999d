package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"learnit-events/internal/domain/discussion"
	learnit_errors "learnit-events/pkg/errors"
)

type discussionRepository struct {
	store *Store
}

func NewDiscussionRepository(store *Store) DiscussionRepository {
	return &discussionRepository{store: store}
}

func (r *discussionRepository) CreateThread(ctx context.Context, t *discussion.Thread) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	if t.Status == "" {
		t.Status = discussion.StatusActive
	}
	if t.Category == "" {
		t.Category = discussion.CategoryGeneral
	}
	t.LastActivityAt = sql.NullTime{Time: t.CreatedAt, Valid: true}
	return r.store.conn(ctx).QueryRowContext(ctx, `
        INSERT INTO threads (course_id, author_id, title, content, category, status, is_pinned, is_locked,
                             view_count, reply_count, upvotes, downvotes, created_at, updated_at, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,0,0,0,$9,$10,$11)
        RETURNING id
    `,
		t.CourseID, t.AuthorID, t.Title, t.Content, t.Category, t.Status, t.IsPinned, t.IsLocked,
		t.CreatedAt, t.UpdatedAt, t.LastActivityAt,
	).Scan(&t.ID)
}

func (r *discussionRepository) GetThread(ctx context.Context, id int64) (discussion.Thread, error) {
	var t discussion.Thread
	err := r.store.conn(ctx).QueryRowContext(ctx, `
        SELECT id, course_id, author_id, title, content, category, status, is_pinned, is_locked,
               view_count, reply_count, upvotes, downvotes, created_at, updated_at, last_activity_at
        FROM threads
        WHERE id = $1
    `, id).Scan(
		&t.ID, &t.CourseID, &t.AuthorID, &t.Title, &t.Content, &t.Category, &t.Status, &t.IsPinned, &t.IsLocked,
		&t.ViewCount, &t.ReplyCount, &t.Upvotes, &t.Downvotes, &t.CreatedAt, &t.UpdatedAt, &t.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return discussion.Thread{}, learnit_errors.ErrNotFound
		}
		return discussion.Thread{}, err
	}
	return t, nil
}

func (r *discussionRepository) SetThreadLocked(ctx context.Context, id int64, locked bool) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, `
        UPDATE threads SET is_locked = $1, updated_at = $2 WHERE id = $3
    `, locked, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *discussionRepository) AdjustThreadCounters(ctx context.Context, id int64, views, replies, upvotes, downvotes int64, at time.Time) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, `
        UPDATE threads SET
            view_count = GREATEST(view_count + $1::bigint, 0),
            reply_count = GREATEST(reply_count + $2::bigint, 0),
            upvotes = GREATEST(upvotes + $3::bigint, 0),
            downvotes = GREATEST(downvotes + $4::bigint, 0),
            updated_at = $5,
            last_activity_at = CASE WHEN $2::bigint <> 0 THEN $5 ELSE last_activity_at END
        WHERE id = $6
    `, views, replies, upvotes, downvotes, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *discussionRepository) CreateComment(ctx context.Context, c *discussion.Comment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return r.store.conn(ctx).QueryRowContext(ctx, `
        INSERT INTO comments (thread_id, parent_comment_id, author_id, content, depth, upvotes, downvotes, created_at)
        VALUES ($1,$2,$3,$4,$5,0,0,$6)
        RETURNING id
    `, c.ThreadID, c.ParentCommentID, c.AuthorID, c.Content, c.Depth, c.CreatedAt).Scan(&c.ID)
}

func (r *discussionRepository) GetComment(ctx context.Context, id int64) (discussion.Comment, error) {
	var c discussion.Comment
	err := r.store.conn(ctx).QueryRowContext(ctx, `
        SELECT id, thread_id, parent_comment_id, author_id, content, depth, upvotes, downvotes, created_at
        FROM comments
        WHERE id = $1
    `, id).Scan(&c.ID, &c.ThreadID, &c.ParentCommentID, &c.AuthorID, &c.Content, &c.Depth, &c.Upvotes, &c.Downvotes, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return discussion.Comment{}, learnit_errors.ErrNotFound
		}
		return discussion.Comment{}, err
	}
	return c, nil
}

func (r *discussionRepository) AdjustCommentVotes(ctx context.Context, id int64, upvotes, downvotes int64) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, `
        UPDATE comments SET
            upvotes = GREATEST(upvotes + $1::bigint, 0),
            downvotes = GREATEST(downvotes + $2::bigint, 0)
        WHERE id = $3
    `, upvotes, downvotes, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *discussionRepository) CreateVote(ctx context.Context, v *discussion.Vote) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	err := r.store.conn(ctx).QueryRowContext(ctx, `
        INSERT INTO votes (user_id, target_type, target_id, vote_type, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id
    `, v.UserID, v.TargetType, v.TargetID, v.VoteType, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return learnit_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *discussionRepository) GetVote(ctx context.Context, userID int64, targetType string, targetID int64) (discussion.Vote, error) {
	var v discussion.Vote
	err := r.store.conn(ctx).QueryRowContext(ctx, `
        SELECT id, user_id, target_type, target_id, vote_type, created_at
        FROM votes
        WHERE user_id = $1 AND target_type = $2 AND target_id = $3
    `, userID, targetType, targetID).Scan(&v.ID, &v.UserID, &v.TargetType, &v.TargetID, &v.VoteType, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return discussion.Vote{}, learnit_errors.ErrNotFound
		}
		return discussion.Vote{}, err
	}
	return v, nil
}

func (r *discussionRepository) DeleteVote(ctx context.Context, id int64) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, `DELETE FROM votes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return learnit_errors.ErrNotFound
	}
	return nil
}
