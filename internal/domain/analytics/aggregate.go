package analytics

import (
	"sort"
	"time"
)

// Score weights.
const (
	ViewWeight    = 1
	CommentWeight = 2
	VoteWeight    = 5
)

// ThreadAggregate holds the engagement counters of one discussion thread.
// Counters only change through Apply and never go below zero.
type ThreadAggregate struct {
	ThreadID    int64
	CourseID    *int64
	Views       int64
	Comments    int64
	Upvotes     int64
	Downvotes   int64
	LastUpdated time.Time
}

// Delta is an increment applied to an aggregate in one step.
type Delta struct {
	Views     int64
	Comments  int64
	Upvotes   int64
	Downvotes int64
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

// NewThreadAggregate is the lazily created zero-counter aggregate.
func NewThreadAggregate(threadID int64, courseID *int64, at time.Time) ThreadAggregate {
	return ThreadAggregate{ThreadID: threadID, CourseID: courseID, LastUpdated: at}
}

// Apply returns a copy with d added and LastUpdated set to at.
func (a ThreadAggregate) Apply(d Delta, at time.Time) ThreadAggregate {
	a.Views = nonNegative(a.Views + d.Views)
	a.Comments = nonNegative(a.Comments + d.Comments)
	a.Upvotes = nonNegative(a.Upvotes + d.Upvotes)
	a.Downvotes = nonNegative(a.Downvotes + d.Downvotes)
	a.LastUpdated = at
	return a
}

func (a ThreadAggregate) Score() int64 {
	return a.Views*ViewWeight + a.Comments*CommentWeight + (a.Upvotes-a.Downvotes)*VoteWeight
}

// Rank orders aggregates by score descending, then thread id ascending, and
// keeps at most limit of them. The input slice is not modified.
func Rank(list []ThreadAggregate, limit int) []ThreadAggregate {
	if limit <= 0 {
		return []ThreadAggregate{}
	}
	ranked := make([]ThreadAggregate, len(list))
	copy(ranked, list)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Score(), ranked[j].Score()
		if si != sj {
			return si > sj
		}
		return ranked[i].ThreadID < ranked[j].ThreadID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
