package analytics

import (
	"context"
	"testing"

	"learnit-events/internal/events"
	"learnit-events/internal/repository/memory"
	learnit_errors "learnit-events/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_TopThreadsByCourse(t *testing.T) {
	store := memory.NewStore()
	d := newTestDispatcher(store)
	q := NewQueryService(store.Aggregates(), store.ProcessedEvents(), 0)

	ingestAll(t, d,
		envelope("c-1", events.EventTypeThreadCreated, map[string]any{"threadId": 1, "courseId": 5}),
		envelope("c-2", events.EventTypeThreadCreated, map[string]any{"threadId": 2, "courseId": 5}),
		envelope("c-3", events.EventTypeThreadCreated, map[string]any{"threadId": 3, "courseId": 5}),
		envelope("c-4", events.EventTypeThreadCreated, map[string]any{"threadId": 4, "courseId": 99}),
		// thread 3: 2 comments = 4, thread 2: 4 views = 4, thread 1: one upvote = 5
		envelope("m-1", events.EventTypeCommentAdded, map[string]any{"threadId": 3}),
		envelope("m-2", events.EventTypeCommentAdded, map[string]any{"threadId": 3}),
		envelope("v-1", events.EventTypeThreadViewed, map[string]any{"threadId": 2}),
		envelope("v-2", events.EventTypeThreadViewed, map[string]any{"threadId": 2}),
		envelope("v-3", events.EventTypeThreadViewed, map[string]any{"threadId": 2}),
		envelope("v-4", events.EventTypeThreadViewed, map[string]any{"threadId": 2}),
		envelope("u-1", events.EventTypeVoteCast, map[string]any{"targetType": "THREAD", "targetId": 1, "voteType": "UPVOTE"}),
		envelope("v-5", events.EventTypeThreadViewed, map[string]any{"threadId": 4}),
	)

	top, err := q.TopThreadsByCourse(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{top[0].ThreadID, top[1].ThreadID, top[2].ThreadID})

	top, err = q.TopThreadsByCourse(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	top, err = q.TopThreadsByCourse(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.NotNil(t, top)
	assert.Empty(t, top)

	top, err = q.TopThreadsByCourse(context.Background(), 1234, 5)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestQueryService_GetThread(t *testing.T) {
	store := memory.NewStore()
	q := NewQueryService(store.Aggregates(), store.ProcessedEvents(), 0)

	_, err := q.GetThread(context.Background(), 77)
	assert.ErrorIs(t, err, learnit_errors.ErrNotFound)

	ingestAll(t, newTestDispatcher(store), envelope("v-1", events.EventTypeThreadViewed, map[string]any{"threadId": 77}))
	agg, err := q.GetThread(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Views)
}

func TestQueryService_IsProcessed(t *testing.T) {
	store := memory.NewStore()
	q := NewQueryService(store.Aggregates(), store.ProcessedEvents(), 0)

	seen, err := q.IsProcessed(context.Background(), "v-1")
	require.NoError(t, err)
	assert.False(t, seen)

	ingestAll(t, newTestDispatcher(store), envelope("v-1", events.EventTypeThreadViewed, map[string]any{"threadId": 3}))
	seen, err = q.IsProcessed(context.Background(), "v-1")
	require.NoError(t, err)
	assert.True(t, seen)
}
