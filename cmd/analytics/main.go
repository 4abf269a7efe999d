package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"learnit-events/config"
	"learnit-events/internal/analytics"
	"learnit-events/internal/bootstrap"
	"learnit-events/internal/metrics"
	"learnit-events/internal/server"
	"learnit-events/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.App.Mode)
	logger.SetGlobalLogger(log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	stores, err := bootstrap.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.Errorf("failed to open store: %v", err)
		os.Exit(1)
	}
	defer stores.Close()

	bus, err := bootstrap.OpenBus(ctx, cfg, log)
	if err != nil {
		log.Errorf("failed to connect to the bus: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	dispatcher := analytics.NewDispatcher(stores.Tx, stores.Processed, stores.Aggregates, cfg.Consumer.StoreTimeout, log)
	consumer := analytics.NewConsumer(bus, dispatcher, cfg.Bus.Topic, log)
	query := analytics.NewQueryService(stores.Aggregates, stores.Processed, cfg.Consumer.StoreTimeout)

	ops := server.New(cfg.App, log)
	ops.SetupRoutes(map[string]server.Check{
		"store": stores.Ping,
		"bus":   bus.Ping,
	}, nil)
	ops.SetupAnalyticsRoutes(query, dispatcher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return ops.Run(gctx) })
	if err := g.Wait(); err != nil {
		log.Errorf("analytics consumer stopped: %v", err)
		os.Exit(1)
	}
	log.Infof("analytics consumer stopped")
}
