package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	learnit_errors "learnit-events/pkg/errors"
)

// Event types emitted by the discussion service.
const (
	EventTypeThreadCreated = "thread_created"
	EventTypeCommentAdded  = "comment_added"
	EventTypeVoteCast      = "vote_cast"
	EventTypeThreadViewed  = "thread_viewed"
)

// Aggregate types recorded on outbox rows.
const (
	AggregateTypeThread  = "THREAD"
	AggregateTypeComment = "COMMENT"
	AggregateTypeVote    = "VOTE"
)

// Vote vocabulary carried in vote_cast payloads.
const (
	TargetTypeThread  = "THREAD"
	TargetTypeComment = "COMMENT"
	VoteTypeUpvote    = "UPVOTE"
	VoteTypeDownvote  = "DOWNVOTE"
)

const DefaultTopic = "discussion.events"

// Event is the closed set of variants an envelope decodes into.
type Event interface {
	EventType() string
}

type ThreadCreated struct {
	ThreadID int64
	CourseID *int64
}

type CommentAdded struct {
	ThreadID  int64
	CommentID *int64
	CourseID  *int64
}

// VoteCast only carries TargetID and VoteType when TargetType is THREAD;
// votes on other targets decode without them.
type VoteCast struct {
	TargetType string
	TargetID   int64
	VoteType   string
}

type ThreadViewed struct {
	ThreadID int64
}

// Unknown keeps the raw type name of events this consumer does not understand.
type Unknown struct {
	Name string
}

func (ThreadCreated) EventType() string { return EventTypeThreadCreated }
func (CommentAdded) EventType() string  { return EventTypeCommentAdded }
func (VoteCast) EventType() string      { return EventTypeVoteCast }
func (ThreadViewed) EventType() string  { return EventTypeThreadViewed }
func (u Unknown) EventType() string     { return u.Name }

// IsThreadVote reports whether the vote targets a thread.
func (v VoteCast) IsThreadVote() bool {
	return v.TargetType == TargetTypeThread
}

// Decode maps an envelope onto its variant. Missing or non-integral required
// fields yield ErrMalformedPayload; unknown types yield Unknown.
func Decode(env Envelope) (Event, error) {
	p := env.Payload
	switch env.EventType {
	case EventTypeThreadCreated:
		threadID, err := requireInt64(p, "threadId")
		if err != nil {
			return nil, err
		}
		courseID, err := optionalInt64(p, "courseId")
		if err != nil {
			return nil, err
		}
		return ThreadCreated{ThreadID: threadID, CourseID: courseID}, nil

	case EventTypeCommentAdded:
		threadID, err := requireInt64(p, "threadId")
		if err != nil {
			return nil, err
		}
		commentID, _ := optionalInt64(p, "commentId")
		courseID, _ := optionalInt64(p, "courseId")
		return CommentAdded{ThreadID: threadID, CommentID: commentID, CourseID: courseID}, nil

	case EventTypeVoteCast:
		targetType, _ := stringField(p, "targetType")
		if targetType != TargetTypeThread {
			return VoteCast{TargetType: targetType}, nil
		}
		targetID, err := requireInt64(p, "targetId")
		if err != nil {
			return nil, err
		}
		voteType, ok := stringField(p, "voteType")
		if !ok {
			return nil, fmt.Errorf("%w: voteType is required", learnit_errors.ErrMalformedPayload)
		}
		return VoteCast{TargetType: targetType, TargetID: targetID, VoteType: voteType}, nil

	case EventTypeThreadViewed:
		threadID, err := requireInt64(p, "threadId")
		if err != nil {
			return nil, err
		}
		return ThreadViewed{ThreadID: threadID}, nil
	}
	return Unknown{Name: env.EventType}, nil
}

func requireInt64(p map[string]any, key string) (int64, error) {
	v, err := optionalInt64(p, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", learnit_errors.ErrMalformedPayload, key)
	}
	return *v, nil
}

func optionalInt64(p map[string]any, key string) (*int64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := ToInt64(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer", learnit_errors.ErrMalformedPayload, key)
	}
	return &v, nil
}

func stringField(p map[string]any, key string) (string, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// ToInt64 normalizes any JSON-ish numeric representation to int64. Floats
// with a fractional part or outside the int64 range are rejected.
func ToInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return uintToInt64(v)
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt64(f)
		}
		return 0, false
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		return 0, false
	}
	return 0, false
}

func uintToInt64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
