package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"learnit-events/config"
	"learnit-events/internal/domain/outbox"
	"learnit-events/internal/middleware"
	"learnit-events/internal/transport/httpdto"
	"learnit-events/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Check reports the readiness of one dependency.
type Check func(ctx context.Context) error

// OutboxInspector exposes the publisher's backlog on /outbox/status.
type OutboxInspector interface {
	PendingCount(ctx context.Context) (int64, error)
	PersistentFailures(ctx context.Context) ([]outbox.OutboxEvent, error)
	FailureThreshold() int
}

// Server is the HTTP surface of a worker process: health checks, Prometheus scrape,
// outbox status on the producer and the analytics API on the consumer.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     config.AppConfig
	logger     *logger.Logger
}

func New(cfg config.AppConfig, l *logger.Logger) *Server {
	switch cfg.Mode {
	case ReleaseMode, "production":
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.OpsPort),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l.Named("ops"),
	}
}

func (s *Server) SetupRoutes(checks map[string]Check, inspector OutboxInspector) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger, "/healthz", "/readyz", "/metrics"))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "ok"}))
	})

	s.engine.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewFailureResponse(failed, httpdto.CodeNotReady))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "ready"}))
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if inspector != nil {
		s.engine.GET("/outbox/status", func(c *gin.Context) {
			ctx := c.Request.Context()
			pending, err := inspector.PendingCount(ctx)
			if err != nil {
				_ = c.Error(err)
				return
			}
			failures, err := inspector.PersistentFailures(ctx)
			if err != nil {
				_ = c.Error(err)
				return
			}
			status := httpdto.OutboxStatus{
				Pending:            pending,
				FailureThreshold:   inspector.FailureThreshold(),
				PersistentFailures: make([]httpdto.FailedEvent, 0, len(failures)),
			}
			for _, f := range failures {
				fe := httpdto.FailedEvent{
					ID:           f.ID,
					EventID:      f.EventID,
					EventType:    f.EventType,
					AggregateID:  f.AggregateID,
					AttemptCount: f.AttemptCount,
					CreatedAt:    f.CreatedAt,
				}
				if f.LastError != nil {
					fe.LastError = *f.LastError
				}
				status.PersistentFailures = append(status.PersistentFailures, fe)
			}
			c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
		})
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down with a 5s grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("starting the ops server on port %s...", s.config.OpsPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("shutting down the ops server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
