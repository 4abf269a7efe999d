//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"learnit-events/internal/domain/analytics"
	"learnit-events/internal/domain/discussion"
	"learnit-events/internal/domain/outbox"
	"learnit-events/pkg/database"
	learnit_errors "learnit-events/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// LEARNIT_TEST_DSN points the suite at an existing database instead of a
// disposable container.
var integrationDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("LEARNIT_TEST_DSN"))
	var container *tcpostgres.PostgresContainer
	if dsn == "" {
		c, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("learnit_events"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
			os.Exit(1)
		}
		container = c
		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres connection string: %v\n", err)
			_ = c.Terminate(ctx)
			os.Exit(1)
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err == nil {
		var migrator *database.Migrator
		migrator, err = database.NewMigrator(db, "learnit_events", nil)
		if err == nil {
			err = migrator.Up()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare database: %v\n", err)
		if container != nil {
			_ = container.Terminate(ctx)
		}
		os.Exit(1)
	}
	integrationDB = db

	code := m.Run()

	_ = db.Close()
	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	_, err := integrationDB.ExecContext(context.Background(),
		`TRUNCATE outbox_events, processed_events, thread_aggregates, votes, comments, threads RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewStore(integrationDB)
}

func createOutboxRows(t *testing.T, store *Store, aggregateIDs ...string) {
	t.Helper()
	repo := NewOutboxRepository(store)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context) error {
		for i, id := range aggregateIDs {
			err := repo.Create(ctx, &outbox.OutboxEvent{
				AggregateType: "THREAD",
				AggregateID:   id,
				EventType:     "thread_viewed",
				EventID:       fmt.Sprintf("thread_viewed-%s-%08x", id, i),
				Payload:       []byte(`{"threadId":` + id + `}`),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestPostgresOutbox_ListPendingIsFIFO(t *testing.T) {
	store := newIntegrationStore(t)
	repo := NewOutboxRepository(store)
	createOutboxRows(t, store, "3", "1", "2")

	pending, err := repo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{pending[0].AggregateID, pending[1].AggregateID, pending[2].AggregateID})
	assert.Less(t, pending[0].ID, pending[1].ID)

	limited, err := repo.ListPending(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPostgresOutbox_CreateRollsBackWithTransaction(t *testing.T) {
	store := newIntegrationStore(t)
	repo := NewOutboxRepository(store)
	boom := errors.New("thread insert failed")

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.Create(ctx, &outbox.OutboxEvent{
			AggregateType: "THREAD", AggregateID: "1", EventType: "thread_created",
			EventID: "thread_created-1-00000000", Payload: []byte(`{}`),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	err = repo.Create(context.Background(), &outbox.OutboxEvent{EventType: "thread_created"})
	assert.ErrorIs(t, err, learnit_errors.ErrTxRequired)
}

func TestPostgresOutbox_Lifecycle(t *testing.T) {
	store := newIntegrationStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()
	createOutboxRows(t, store, "1", "2")

	attempts, err := repo.MarkFailed(ctx, 1, "broker timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	attempts, err = repo.MarkFailed(ctx, 1, "broker timeout again")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	failures, err := repo.ListPersistentFailures(ctx, 2)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.NotNil(t, failures[0].LastError)
	assert.Equal(t, "broker timeout again", *failures[0].LastError)

	old := time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, repo.MarkPublished(ctx, 1, old))
	require.NoError(t, repo.MarkPublished(ctx, 2, time.Now().UTC()))

	n, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stale, err := repo.ListProcessedBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, int64(1), stale[0].ID)
	assert.Equal(t, 3, stale[0].AttemptCount)
	assert.Nil(t, stale[0].LastError)

	deleted, err := repo.DeleteByIDs(ctx, []int64{stale[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.ListProcessedBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(2), remaining[0].ID)
}

func TestPostgresOutbox_DeleteKeepsPendingRows(t *testing.T) {
	store := newIntegrationStore(t)
	repo := NewOutboxRepository(store)
	createOutboxRows(t, store, "1")

	deleted, err := repo.DeleteByIDs(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPostgresClaim_ConcurrentSingleWinner(t *testing.T) {
	store := newIntegrationStore(t)
	processed := NewProcessedEventRepository(store)
	aggregates := NewThreadAggregateRepository(store)

	const workers = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context) error {
				claimed, err := processed.Claim(ctx, analytics.ProcessedEvent{
					EventID: "thread_viewed-1-0000abcd", EventType: "thread_viewed", ReceivedAt: time.Now().UTC(),
				})
				if err != nil || !claimed {
					return err
				}
				mu.Lock()
				won++
				mu.Unlock()
				return aggregates.ApplyDelta(ctx, 1, analytics.Delta{Views: 1}, time.Now().UTC())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	agg, err := aggregates.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Views)

	exists, err := processed.Exists(context.Background(), "thread_viewed-1-0000abcd")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresClaim_RolledBackClaimCanBeRetried(t *testing.T) {
	store := newIntegrationStore(t)
	processed := NewProcessedEventRepository(store)
	boom := errors.New("apply failed")

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := processed.Claim(ctx, analytics.ProcessedEvent{EventID: "e-1", EventType: "thread_viewed", ReceivedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	claimed, err := processed.Claim(context.Background(), analytics.ProcessedEvent{EventID: "e-1", EventType: "thread_viewed", ReceivedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestPostgresAggregates_ConcurrentDeltasAreAtomic(t *testing.T) {
	store := newIntegrationStore(t)
	aggregates := NewThreadAggregateRepository(store)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, aggregates.ApplyDelta(context.Background(), 9, analytics.Delta{Views: 1, Upvotes: 1}, time.Now().UTC()))
		}()
	}
	wg.Wait()

	agg, err := aggregates.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), agg.Views)
	assert.Equal(t, int64(workers), agg.Upvotes)
	assert.Nil(t, agg.CourseID)
}

func TestPostgresAggregates_NegativeDeltaClampsAtZero(t *testing.T) {
	store := newIntegrationStore(t)
	aggregates := NewThreadAggregateRepository(store)
	ctx := context.Background()

	require.NoError(t, aggregates.ApplyDelta(ctx, 4, analytics.Delta{Downvotes: -3}, time.Now().UTC()))
	require.NoError(t, aggregates.ApplyDelta(ctx, 4, analytics.Delta{Downvotes: 1}, time.Now().UTC()))
	require.NoError(t, aggregates.ApplyDelta(ctx, 4, analytics.Delta{Downvotes: -5}, time.Now().UTC()))

	agg, err := aggregates.Get(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, agg.Downvotes)
}

func TestPostgresAggregates_CreateIfAbsent(t *testing.T) {
	store := newIntegrationStore(t)
	aggregates := NewThreadAggregateRepository(store)
	ctx := context.Background()
	course := int64(3)

	created, err := aggregates.CreateIfAbsent(ctx, 1, &course, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, aggregates.ApplyDelta(ctx, 2, analytics.Delta{Comments: 1}, time.Now().UTC()))
	created, err = aggregates.CreateIfAbsent(ctx, 2, &course, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, created, "existing aggregate is not backfilled")

	byCourse, err := aggregates.ListByCourse(ctx, course)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, int64(1), byCourse[0].ThreadID)

	_, err = aggregates.Get(ctx, 404)
	assert.ErrorIs(t, err, learnit_errors.ErrNotFound)
}

func TestPostgresDiscussion_CountersAndVotes(t *testing.T) {
	store := newIntegrationStore(t)
	repo := NewDiscussionRepository(store)
	ctx := context.Background()

	thread := &discussion.Thread{CourseID: 3, AuthorID: 7, Title: "Exam prep", Content: "Which chapters?"}
	require.NoError(t, repo.CreateThread(ctx, thread))
	require.NotZero(t, thread.ID)

	require.NoError(t, repo.AdjustThreadCounters(ctx, thread.ID, 2, 1, 1, -1, time.Now().UTC()))
	got, err := repo.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ViewCount)
	assert.Equal(t, int64(1), got.ReplyCount)
	assert.Equal(t, int64(1), got.Upvotes)
	assert.Zero(t, got.Downvotes)
	assert.Equal(t, discussion.StatusActive, got.Status)

	vote := &discussion.Vote{UserID: 7, TargetType: "THREAD", TargetID: thread.ID, VoteType: "UPVOTE"}
	require.NoError(t, repo.CreateVote(ctx, vote))
	dup := &discussion.Vote{UserID: 7, TargetType: "THREAD", TargetID: thread.ID, VoteType: "DOWNVOTE"}
	assert.ErrorIs(t, repo.CreateVote(ctx, dup), learnit_errors.ErrAlreadyExists)

	require.NoError(t, repo.DeleteVote(ctx, vote.ID))
	_, err = repo.GetVote(ctx, 7, "THREAD", thread.ID)
	assert.ErrorIs(t, err, learnit_errors.ErrNotFound)
	assert.ErrorIs(t, repo.SetThreadLocked(ctx, 999, true), learnit_errors.ErrNotFound)
}
