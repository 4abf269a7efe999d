package discussion

import (
	"database/sql"
	"time"
)

const MaxCommentDepth = 3

const (
	StatusActive   = "ACTIVE"
	StatusLocked   = "LOCKED"
	StatusArchived = "ARCHIVED"
	StatusDeleted  = "DELETED"
)

const (
	CategoryGeneral      = "GENERAL"
	CategoryQuestion     = "QUESTION"
	CategoryAnnouncement = "ANNOUNCEMENT"
	CategoryAssignment   = "ASSIGNMENT"
	CategoryTechnical    = "TECHNICAL"
)

// Thread represents the threads table
type Thread struct {
	ID             int64
	CourseID       int64
	AuthorID       int64
	Title          string
	Content        string
	Category       string
	Status         string
	IsPinned       bool
	IsLocked       bool
	ViewCount      int64
	ReplyCount     int64
	Upvotes        int64
	Downvotes      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt sql.NullTime
}

// Comment represents the comments table. Depth 0 is a top-level comment.
type Comment struct {
	ID              int64
	ThreadID        int64
	ParentCommentID sql.NullInt64
	AuthorID        int64
	Content         string
	Depth           int
	Upvotes         int64
	Downvotes       int64
	CreatedAt       time.Time
}

// Vote represents the votes table; (UserID, TargetType, TargetID) is unique.
type Vote struct {
	ID         int64
	UserID     int64
	TargetType string
	TargetID   int64
	VoteType   string
	CreatedAt  time.Time
}

func (Thread) TableName() string {
	return "threads"
}

func (Comment) TableName() string {
	return "comments"
}

func (Vote) TableName() string {
	return "votes"
}
