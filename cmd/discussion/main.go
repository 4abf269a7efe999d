package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"learnit-events/config"
	"learnit-events/internal/bootstrap"
	"learnit-events/internal/metrics"
	"learnit-events/internal/outbox"
	"learnit-events/internal/server"
	"learnit-events/internal/services"
	"learnit-events/pkg/logger"
)

func main() {
	seedDemo := flag.Bool("seed-demo", false, "Create a demo thread with some activity at startup")
	flag.Parse()

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

	var archiver outbox.Archiver
	archive, err := bootstrap.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		log.Errorf("failed to set up the outbox archive: %v", err)
		os.Exit(1)
	}
	if archive != nil {
		archiver = archive
	}

	processor := outbox.NewProcessor(stores.Outbox, bus, outbox.ProcessorConfig{
		Topic:            cfg.Bus.Topic,
		StartupDelay:     cfg.Outbox.StartupDelay,
		Interval:         cfg.Outbox.Interval,
		BatchSize:        cfg.Outbox.BatchSize,
		Workers:          cfg.Outbox.Workers,
		PublishTimeout:   cfg.Outbox.PublishTimeout,
		StoreTimeout:     cfg.Outbox.StoreTimeout,
		FailureThreshold: cfg.Outbox.FailureThreshold,
		BreakerTimeout:   cfg.Outbox.BreakerTimeout,
	}, log)
	sweeper := outbox.NewSweeper(stores.Outbox, archiver, outbox.SweeperConfig{
		Retention: cfg.Outbox.Retention,
		Interval:  cfg.Outbox.SweepInterval,
	}, log)

	if *seedDemo {
		writer := outbox.NewWriter(stores.Outbox, outbox.WithSourceService(cfg.App.SourceService), outbox.WithWriterLogger(log))
		svc := services.NewDiscussionService(stores.Tx, stores.Discussion, writer, log)
		if err := seedDemoActivity(ctx, svc); err != nil {
			log.Errorf("failed to seed demo activity: %v", err)
			os.Exit(1)
		}
	}

	runner := outbox.NewRunner(processor, sweeper)
	runner.Start(ctx)

	ops := server.New(cfg.App, log)
	ops.SetupRoutes(map[string]server.Check{
		"store": stores.Ping,
		"bus":   bus.Ping,
	}, processor)
	if err := ops.Run(ctx); err != nil {
		log.Errorf("ops server failed: %v", err)
		stop()
	}

	runner.Wait()
	log.Infof("discussion outbox publisher stopped")
}

func seedDemoActivity(ctx context.Context, svc *services.DiscussionService) error {
	thread, err := svc.CreateThread(ctx, services.CreateThreadInput{
		CourseID: 1,
		AuthorID: 1,
		Title:    "Welcome to the course",
		Content:  "Introduce yourself here.",
		Category: "GENERAL",
	})
	if err != nil {
		return err
	}
	if _, err := svc.ViewThread(ctx, thread.ID); err != nil {
		return err
	}
	comment, err := svc.AddComment(ctx, services.AddCommentInput{ThreadID: thread.ID, AuthorID: 2, Content: "Hello!"})
	if err != nil {
		return err
	}
	if _, err := svc.CastVote(ctx, services.CastVoteInput{UserID: 2, TargetType: "THREAD", TargetID: thread.ID, VoteType: "UPVOTE"}); err != nil {
		return err
	}
	_, err = svc.CastVote(ctx, services.CastVoteInput{UserID: 1, TargetType: "COMMENT", TargetID: comment.ID, VoteType: "UPVOTE"})
	return err
}
