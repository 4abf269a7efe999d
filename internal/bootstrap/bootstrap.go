// Package bootstrap wires config into the store, bus and archive the
// binaries run on.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"learnit-events/config"
	"learnit-events/internal/events"
	"learnit-events/internal/redis"
	"learnit-events/internal/repository"
	"learnit-events/internal/repository/memory"
	"learnit-events/internal/storage"
	"learnit-events/pkg/database"
	"learnit-events/pkg/logger"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	BusDriverRedis = "redis"
	BusDriverNATS  = "nats"
)

// Stores is one backend's set of repositories sharing a transactor.
type Stores struct {
	Tx         repository.Transactor
	Outbox     repository.OutboxRepository
	Processed  repository.ProcessedEventRepository
	Aggregates repository.ThreadAggregateRepository
	Discussion repository.DiscussionRepository

	Ping  func(ctx context.Context) error
	Close func() error
	DB    *sql.DB
}

func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*Stores, error) {
	switch strings.ToLower(cfg.Driver) {
	case StoreDriverMemory:
		log.Warnf("using the in-memory store, state is lost on exit")
		st := memory.NewStore()
		return &Stores{
			Tx:         st,
			Outbox:     st.Outbox(),
			Processed:  st.ProcessedEvents(),
			Aggregates: st.Aggregates(),
			Discussion: st.Discussion(),
			Ping:       st.Ping,
			Close:      func() error { return nil },
		}, nil

	case StoreDriverPostgres, "":
		db, err := database.Connect(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		st := repository.NewStore(db)
		return &Stores{
			Tx:         st,
			Outbox:     repository.NewOutboxRepository(st),
			Processed:  repository.NewProcessedEventRepository(st),
			Aggregates: repository.NewThreadAggregateRepository(st),
			Discussion: repository.NewDiscussionRepository(st),
			Ping:       st.Ping,
			Close:      db.Close,
			DB:         db,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// BusHandle is a connected bus plus its readiness check.
type BusHandle struct {
	events.Bus
	Ping func(ctx context.Context) error
}

func OpenBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (*BusHandle, error) {
	switch strings.ToLower(cfg.Bus.Driver) {
	case BusDriverRedis, "":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		bus := events.NewRedisStreamBus(client, events.RedisStreamConfig{
			Group:     cfg.Redis.ConsumerGroup,
			Consumer:  cfg.Redis.ConsumerName,
			MaxLen:    cfg.Redis.MaxLen,
			Count:     int64(cfg.Consumer.FetchBatch),
			Block:     cfg.Consumer.BlockTimeout,
			ClaimIdle: cfg.Consumer.ClaimIdle,
		}, log)
		return &BusHandle{
			Bus:  bus,
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}, nil

	case BusDriverNATS:
		bus, err := events.NewNATSBus(ctx, events.NATSConfig{
			URL:        cfg.NATS.URL,
			Stream:     cfg.NATS.Stream,
			Durable:    cfg.NATS.Durable,
			Subjects:   []string{cfg.Bus.Topic},
			AckWait:    cfg.NATS.AckWait,
			MaxDeliver: cfg.NATS.MaxDeliver,
			FetchBatch: cfg.Consumer.FetchBatch,
			FetchWait:  cfg.Consumer.BlockTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return &BusHandle{Bus: bus, Ping: bus.Ping}, nil
	}
	return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
}

// OpenArchive returns nil when no archive bucket is configured.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (*storage.Archive, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	return storage.NewArchive(ctx, storage.S3Config{
		Region:    cfg.Region,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Endpoint:  cfg.Endpoint,
	})
}
