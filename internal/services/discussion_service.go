package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"learnit-events/internal/domain/discussion"
	"learnit-events/internal/events"
	"learnit-events/internal/outbox"
	"learnit-events/internal/repository"
	learnit_errors "learnit-events/pkg/errors"
	"learnit-events/pkg/logger"
)

// DiscussionService owns threads, comments and votes. Every mutation and
// its outbox event commit in the same transaction.
type DiscussionService struct {
	tx     repository.Transactor
	repo   repository.DiscussionRepository
	outbox *outbox.Writer
	clock  func() time.Time
	log    *logger.Logger
}

func NewDiscussionService(tx repository.Transactor, repo repository.DiscussionRepository, writer *outbox.Writer, log *logger.Logger) *DiscussionService {
	if log == nil {
		log = logger.NewNop()
	}
	return &DiscussionService{
		tx:     tx,
		repo:   repo,
		outbox: writer,
		clock:  time.Now,
		log:    log.Named("discussion"),
	}
}

type CreateThreadInput struct {
	CourseID int64
	AuthorID int64
	Title    string
	Content  string
	Category string
	IsPinned bool
}

func (in CreateThreadInput) Validate() error {
	if in.CourseID <= 0 || in.AuthorID <= 0 {
		return fmt.Errorf("%w: course and author are required", learnit_errors.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", learnit_errors.ErrInvalidInput)
	}
	return nil
}

type AddCommentInput struct {
	ThreadID        int64
	AuthorID        int64
	Content         string
	ParentCommentID *int64
}

func (in AddCommentInput) Validate() error {
	if in.ThreadID <= 0 || in.AuthorID <= 0 {
		return fmt.Errorf("%w: thread and author are required", learnit_errors.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content cannot be empty", learnit_errors.ErrInvalidInput)
	}
	return nil
}

type CastVoteInput struct {
	UserID     int64
	TargetType string
	TargetID   int64
	VoteType   string
}

func (in *CastVoteInput) normalize() error {
	in.TargetType = strings.ToUpper(strings.TrimSpace(in.TargetType))
	in.VoteType = strings.ToUpper(strings.TrimSpace(in.VoteType))
	if in.UserID <= 0 || in.TargetID <= 0 {
		return fmt.Errorf("%w: user and target are required", learnit_errors.ErrInvalidInput)
	}
	if in.TargetType != events.TargetTypeThread && in.TargetType != events.TargetTypeComment {
		return fmt.Errorf("%w: unknown target type %q", learnit_errors.ErrInvalidInput, in.TargetType)
	}
	if in.VoteType != events.VoteTypeUpvote && in.VoteType != events.VoteTypeDownvote {
		return fmt.Errorf("%w: unknown vote type %q", learnit_errors.ErrInvalidInput, in.VoteType)
	}
	return nil
}

func (s *DiscussionService) CreateThread(ctx context.Context, in CreateThreadInput) (discussion.Thread, error) {
	if err := in.Validate(); err != nil {
		return discussion.Thread{}, err
	}
	s.log.Infof("creating thread for course %d", in.CourseID)

	thread := discussion.Thread{
		CourseID:  in.CourseID,
		AuthorID:  in.AuthorID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  strings.ToUpper(in.Category),
		Status:    discussion.StatusActive,
		IsPinned:  in.IsPinned,
		CreatedAt: s.clock().UTC(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateThread(ctx, &thread); err != nil {
			return err
		}
		return s.outbox.Append(ctx, events.AggregateTypeThread, idString(thread.ID), events.EventTypeThreadCreated, map[string]any{
			"threadId": thread.ID,
			"courseId": thread.CourseID,
		})
	})
	if err != nil {
		return discussion.Thread{}, err
	}
	s.log.Infof("thread created with id %d", thread.ID)
	return thread, nil
}

// ViewThread returns the thread after counting the view.
func (s *DiscussionService) ViewThread(ctx context.Context, threadID int64) (discussion.Thread, error) {
	var thread discussion.Thread
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AdjustThreadCounters(ctx, threadID, 1, 0, 0, 0, s.clock().UTC()); err != nil {
			return err
		}
		var err error
		if thread, err = s.repo.GetThread(ctx, threadID); err != nil {
			return err
		}
		return s.outbox.Append(ctx, events.AggregateTypeThread, idString(thread.ID), events.EventTypeThreadViewed, map[string]any{
			"threadId": thread.ID,
			"courseId": thread.CourseID,
		})
	})
	return thread, err
}

func (s *DiscussionService) SetThreadLocked(ctx context.Context, threadID int64, locked bool) error {
	if err := s.repo.SetThreadLocked(ctx, threadID, locked); err != nil {
		return err
	}
	s.log.Infof("thread %d locked status: %t", threadID, locked)
	return nil
}

// AddComment rejects locked threads and replies nested deeper than
// MaxCommentDepth.
func (s *DiscussionService) AddComment(ctx context.Context, in AddCommentInput) (discussion.Comment, error) {
	if err := in.Validate(); err != nil {
		return discussion.Comment{}, err
	}
	s.log.Infof("adding comment to thread %d", in.ThreadID)

	var comment discussion.Comment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		thread, err := s.repo.GetThread(ctx, in.ThreadID)
		if err != nil {
			return err
		}
		if thread.IsLocked {
			return fmt.Errorf("thread %d: %w", thread.ID, learnit_errors.ErrLocked)
		}

		now := s.clock().UTC()
		comment = discussion.Comment{
			ThreadID:  thread.ID,
			AuthorID:  in.AuthorID,
			Content:   in.Content,
			CreatedAt: now,
		}
		if in.ParentCommentID != nil {
			parent, err := s.repo.GetComment(ctx, *in.ParentCommentID)
			if err != nil {
				return fmt.Errorf("parent comment: %w", err)
			}
			if parent.ThreadID != thread.ID {
				return fmt.Errorf("%w: parent comment belongs to another thread", learnit_errors.ErrInvalidInput)
			}
			comment.Depth = parent.Depth + 1
			if comment.Depth > discussion.MaxCommentDepth {
				return fmt.Errorf("%w: maximum comment depth exceeded", learnit_errors.ErrInvalidInput)
			}
			comment.ParentCommentID = sql.NullInt64{Int64: parent.ID, Valid: true}
		}

		if err := s.repo.CreateComment(ctx, &comment); err != nil {
			return err
		}
		if err := s.repo.AdjustThreadCounters(ctx, thread.ID, 0, 1, 0, 0, now); err != nil {
			return err
		}
		return s.outbox.Append(ctx, events.AggregateTypeComment, idString(comment.ID), events.EventTypeCommentAdded, map[string]any{
			"commentId": comment.ID,
			"threadId":  thread.ID,
			"courseId":  thread.CourseID,
		})
	})
	if err != nil {
		return discussion.Comment{}, err
	}
	s.log.Infof("comment added with id %d", comment.ID)
	return comment, nil
}

// CastVote replaces any earlier vote of the same user on the same target.
func (s *DiscussionService) CastVote(ctx context.Context, in CastVoteInput) (discussion.Vote, error) {
	if err := in.normalize(); err != nil {
		return discussion.Vote{}, err
	}
	s.log.Infof("user %d casting %s on %s %d", in.UserID, in.VoteType, in.TargetType, in.TargetID)

	var vote discussion.Vote
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.clock().UTC()

		existing, err := s.repo.GetVote(ctx, in.UserID, in.TargetType, in.TargetID)
		switch {
		case err == nil:
			if err := s.adjustVotes(ctx, existing.TargetType, existing.TargetID, existing.VoteType, -1, now); err != nil {
				return err
			}
			if err := s.repo.DeleteVote(ctx, existing.ID); err != nil {
				return err
			}
		case !errors.Is(err, learnit_errors.ErrNotFound):
			return err
		}

		vote = discussion.Vote{
			UserID:     in.UserID,
			TargetType: in.TargetType,
			TargetID:   in.TargetID,
			VoteType:   in.VoteType,
			CreatedAt:  now,
		}
		if err := s.repo.CreateVote(ctx, &vote); err != nil {
			return err
		}
		if err := s.adjustVotes(ctx, vote.TargetType, vote.TargetID, vote.VoteType, 1, now); err != nil {
			return err
		}

		threadID := vote.TargetID
		if vote.TargetType == events.TargetTypeComment {
			c, err := s.repo.GetComment(ctx, vote.TargetID)
			if err != nil {
				return err
			}
			threadID = c.ThreadID
		}
		thread, err := s.repo.GetThread(ctx, threadID)
		if err != nil {
			return err
		}

		return s.outbox.Append(ctx, events.AggregateTypeVote, idString(vote.ID), events.EventTypeVoteCast, map[string]any{
			"voteId":     vote.ID,
			"targetType": vote.TargetType,
			"targetId":   vote.TargetID,
			"voteType":   vote.VoteType,
			"threadId":   thread.ID,
			"courseId":   thread.CourseID,
		})
	})
	if err != nil {
		return discussion.Vote{}, err
	}
	return vote, nil
}

func (s *DiscussionService) adjustVotes(ctx context.Context, targetType string, targetID int64, voteType string, n int64, at time.Time) error {
	var up, down int64
	if voteType == events.VoteTypeUpvote {
		up = n
	} else {
		down = n
	}
	if targetType == events.TargetTypeThread {
		return s.repo.AdjustThreadCounters(ctx, targetID, 0, 0, up, down, at)
	}
	return s.repo.AdjustCommentVotes(ctx, targetID, up, down)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
