package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnit-events/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Stream entry field names.
const (
	fieldKey  = "key"
	fieldID   = "id"
	fieldBody = "body"
)

type RedisStreamConfig struct {
	Group     string
	Consumer  string
	MaxLen    int64
	Count     int64
	Block     time.Duration
	ClaimIdle time.Duration
}

// RedisStreamBus implements Bus on Redis Streams. Each topic is one stream;
// consumers share a group so every entry is handled by one member, and
// entries left unacknowledged are reclaimed once idle for ClaimIdle.
type RedisStreamBus struct {
	client *redis.Client
	cfg    RedisStreamConfig
	log    *logger.Logger
}

func NewRedisStreamBus(client *redis.Client, cfg RedisStreamConfig, log *logger.Logger) *RedisStreamBus {
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisStreamBus{client: client, cfg: cfg, log: log.Named("redis-bus")}
}

func (b *RedisStreamBus) Publish(ctx context.Context, msg Message) error {
	if b.client == nil {
		return fmt.Errorf("redis bus: %w", errNoClient)
	}
	args := &redis.XAddArgs{
		Stream: msg.Topic,
		Values: map[string]interface{}{
			fieldKey:  msg.Key,
			fieldID:   msg.ID,
			fieldBody: string(msg.Body),
		},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis bus: xadd %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe blocks until ctx is cancelled. It returns nil on cancellation
// and an error only when the consumer group cannot be created.
func (b *RedisStreamBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := b.ensureGroup(ctx, topic); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		b.reclaim(ctx, topic, handler)

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{topic, ">"},
			Count:    b.cfg.Count,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warnf("xreadgroup %s failed: %v", topic, err)
			if !sleepCtx(ctx, b.cfg.Block) {
				return nil
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				b.handle(ctx, topic, entry, handler)
			}
		}
	}
}

func (b *RedisStreamBus) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *RedisStreamBus) ensureGroup(ctx context.Context, topic string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis bus: create group %s on %s: %w", b.cfg.Group, topic, err)
	}
	return nil
}

// reclaim takes over entries another consumer (or an earlier failed
// attempt of this one) left pending for longer than ClaimIdle.
func (b *RedisStreamBus) reclaim(ctx context.Context, topic string, handler Handler) {
	entries, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		MinIdle:  b.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    b.cfg.Count,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			b.log.Warnf("xautoclaim %s failed: %v", topic, err)
		}
		return
	}
	for _, entry := range entries {
		b.handle(ctx, topic, entry, handler)
	}
}

func (b *RedisStreamBus) handle(ctx context.Context, topic string, entry redis.XMessage, handler Handler) {
	msg := Message{
		Topic: topic,
		Key:   stringValue(entry.Values[fieldKey]),
		ID:    stringValue(entry.Values[fieldID]),
		Body:  []byte(stringValue(entry.Values[fieldBody])),
	}
	if err := handler(ctx, msg); err != nil {
		b.log.Warnf("handler failed for entry %s (event %s), leaving pending: %v", entry.ID, msg.ID, err)
		return
	}
	if err := b.client.XAck(ctx, topic, b.cfg.Group, entry.ID).Err(); err != nil {
		b.log.Warnf("xack %s failed: %v", entry.ID, err)
	}
}

var errNoClient = errors.New("client not initialized")

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
