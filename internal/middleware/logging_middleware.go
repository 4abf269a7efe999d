package middleware

import (
	"time"

	"learnit-events/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs one line per request. Health and scrape paths in
// quiet are logged at debug level.
func LoggingMiddleware(l *logger.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		if log == nil {
			return
		}
		if skip[path] && status < 400 {
			log.Ctx(c.Request.Context()).Debugf("%s %s %d %s", method, path, status, latency.String())
			return
		}
		log.Ctx(c.Request.Context()).Infof("%s %s %d %s", method, path, status, latency.String())
	}
}
