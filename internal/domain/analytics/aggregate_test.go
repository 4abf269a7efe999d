package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadAggregate_Apply(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	agg := NewThreadAggregate(1, nil, at.Add(-time.Hour))

	agg = agg.Apply(Delta{Views: 2, Comments: 1, Upvotes: 1, Downvotes: 1}, at)

	assert.Equal(t, int64(2), agg.Views)
	assert.Equal(t, int64(1), agg.Comments)
	assert.Equal(t, int64(1), agg.Upvotes)
	assert.Equal(t, int64(1), agg.Downvotes)
	assert.Equal(t, at, agg.LastUpdated)
}

func TestThreadAggregate_ApplyNeverNegative(t *testing.T) {
	agg := NewThreadAggregate(1, nil, time.Now()).Apply(Delta{Views: -3, Downvotes: -1}, time.Now())

	assert.Zero(t, agg.Views)
	assert.Zero(t, agg.Downvotes)
}

func TestThreadAggregate_Score(t *testing.T) {
	agg := ThreadAggregate{Views: 10, Comments: 3, Upvotes: 4, Downvotes: 1}
	assert.Equal(t, int64(10+3*2+(4-1)*5), agg.Score())
}

func TestRank_TieBreakByThreadID(t *testing.T) {
	a := ThreadAggregate{ThreadID: 20, Views: 10}
	b := ThreadAggregate{ThreadID: 10, Upvotes: 2}
	require.Equal(t, a.Score(), b.Score())

	for i := 0; i < 5; i++ {
		ranked := Rank([]ThreadAggregate{a, b}, 10)
		require.Len(t, ranked, 2)
		assert.Equal(t, int64(10), ranked[0].ThreadID)
		assert.Equal(t, int64(20), ranked[1].ThreadID)

		ranked = Rank([]ThreadAggregate{b, a}, 10)
		assert.Equal(t, int64(10), ranked[0].ThreadID)
	}
}

func TestRank_Truncation(t *testing.T) {
	five := []ThreadAggregate{
		{ThreadID: 1, Views: 1},
		{ThreadID: 2, Views: 50},
		{ThreadID: 3, Comments: 4},
		{ThreadID: 4, Downvotes: 2},
		{ThreadID: 5, Upvotes: 3},
	}

	top := Rank(five, 1)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].ThreadID)

	all := Rank(five[:2], 100)
	assert.Len(t, all, 2)

	assert.Empty(t, Rank(five, 0))
	assert.Empty(t, Rank(five, -1))
	assert.NotNil(t, Rank(nil, 0))
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []ThreadAggregate{{ThreadID: 2}, {ThreadID: 1, Views: 9}}
	_ = Rank(in, 2)
	assert.Equal(t, int64(2), in[0].ThreadID)
}
