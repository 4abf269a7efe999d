package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStreamBus(t *testing.T, mr *miniredis.Miniredis, claimIdle time.Duration) *RedisStreamBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStreamBus(client, RedisStreamConfig{
		Group:     "analytics",
		Consumer:  "c1",
		MaxLen:    1000,
		Block:     20 * time.Millisecond,
		ClaimIdle: claimIdle,
	}, nil)
}

func TestRedisStreamBus_PublishAppendsEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newTestStreamBus(t, mr, time.Minute)

	err := bus.Publish(context.Background(), Message{Topic: DefaultTopic, Key: "7", ID: "thread_created-7-abcd0123", Body: []byte(`{"a":1}`)})
	require.NoError(t, err)

	entries, err := bus.client.XRange(context.Background(), DefaultTopic, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].Values[fieldKey])
	assert.Equal(t, "thread_created-7-abcd0123", entries[0].Values[fieldID])
	assert.Equal(t, `{"a":1}`, entries[0].Values[fieldBody])
}

func TestRedisStreamBus_SubscribeDeliversInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newTestStreamBus(t, mr, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		require.NoError(t, bus.Publish(ctx, Message{Topic: DefaultTopic, Key: "1", ID: id, Body: []byte(id)}))
	}

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, DefaultTopic, func(_ context.Context, msg Message) error {
			mu.Lock()
			got = append(got, msg.ID)
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}

	assert.Equal(t, []string{"e-1", "e-2", "e-3"}, got)

	pending, err := bus.client.XPending(context.Background(), DefaultTopic, "analytics").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestRedisStreamBus_FailedHandlerIsRedelivered(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newTestStreamBus(t, mr, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, Message{Topic: DefaultTopic, Key: "1", ID: "e-1", Body: []byte("x")}))

	var calls atomic.Int32
	go func() {
		_ = bus.Subscribe(ctx, DefaultTopic, func(_ context.Context, msg Message) error {
			if calls.Add(1) == 1 {
				return errors.New("store unavailable")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
}
