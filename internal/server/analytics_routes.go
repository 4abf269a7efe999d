package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"learnit-events/internal/analytics"
	domain "learnit-events/internal/domain/analytics"
	"learnit-events/internal/events"
	"learnit-events/internal/transport/httpdto"
	learnit_errors "learnit-events/pkg/errors"

	"github.com/gin-gonic/gin"
)

const defaultTopLimit = 10

type AnalyticsReader interface {
	GetThread(ctx context.Context, threadID int64) (domain.ThreadAggregate, error)
	TopThreadsByCourse(ctx context.Context, courseID int64, limit int) ([]domain.ThreadAggregate, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

type EventIngester interface {
	Ingest(ctx context.Context, env events.Envelope) (analytics.Outcome, error)
	IngestBatch(ctx context.Context, envs []events.Envelope) analytics.BatchResult
}

// SetupAnalyticsRoutes mounts the analytics API under /api/analytics. Call it
// after SetupRoutes so the middleware chain applies.
func (s *Server) SetupAnalyticsRoutes(reader AnalyticsReader, ingester EventIngester) {
	api := s.engine.Group("/api/analytics")

	api.POST("/ingest", func(c *gin.Context) {
		var env events.Envelope
		if err := c.ShouldBindJSON(&env); err != nil {
			_ = c.Error(fmt.Errorf("%w: %v", learnit_errors.ErrInvalidInput, err))
			return
		}
		outcome, err := ingester.Ingest(c.Request.Context(), env)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.IngestResult{
			EventID: env.EventID,
			Outcome: string(outcome),
		}))
	})

	api.POST("/ingest/batch", func(c *gin.Context) {
		var envs []events.Envelope
		if err := c.ShouldBindJSON(&envs); err != nil {
			_ = c.Error(fmt.Errorf("%w: %v", learnit_errors.ErrInvalidInput, err))
			return
		}
		res := ingester.IngestBatch(c.Request.Context(), envs)
		out := httpdto.BatchIngestResult{Results: make([]httpdto.IngestResult, 0, len(envs))}
		for i, env := range envs {
			r := httpdto.IngestResult{EventID: env.EventID, Outcome: string(res.Outcomes[i])}
			if err := res.Errors[i]; err != nil {
				r.Error = err.Error()
				out.Failed++
			} else {
				out.Accepted++
			}
			out.Results = append(out.Results, r)
		}
		c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(out))
	})

	api.GET("/threads/:threadId", func(c *gin.Context) {
		threadID, err := pathInt(c, "threadId")
		if err != nil {
			_ = c.Error(err)
			return
		}
		agg, err := reader.GetThread(c.Request.Context(), threadID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewThreadAnalytics(agg)))
	})

	api.GET("/courses/:courseId/top", func(c *gin.Context) {
		courseID, err := pathInt(c, "courseId")
		if err != nil {
			_ = c.Error(err)
			return
		}
		limit := defaultTopLimit
		if raw := c.Query("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				_ = c.Error(fmt.Errorf("%w: limit must be an integer", learnit_errors.ErrInvalidInput))
				return
			}
		}
		top, err := reader.TopThreadsByCourse(c.Request.Context(), courseID, limit)
		if err != nil {
			_ = c.Error(err)
			return
		}
		out := make([]httpdto.ThreadAnalytics, 0, len(top))
		for _, agg := range top {
			out = append(out, httpdto.NewThreadAnalytics(agg))
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
	})

	api.GET("/events/:eventId", func(c *gin.Context) {
		eventID := c.Param("eventId")
		processed, err := reader.IsProcessed(c.Request.Context(), eventID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ProcessedStatus{
			EventID:   eventID,
			Processed: processed,
		}))
	})
}

func pathInt(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", learnit_errors.ErrInvalidInput, name)
	}
	return v, nil
}
