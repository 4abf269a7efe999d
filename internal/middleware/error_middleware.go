package middleware

import (
	"net/http"

	"learnit-events/internal/transport/httpdto"
	"learnit-events/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, _ := httpdto.StatusFor(err)
		if l != nil {
			log := l.Ctx(c.Request.Context())
			if status >= http.StatusInternalServerError {
				log.Errorf("request error: %s", err.Error())
			} else {
				log.Warnf("request rejected: %s", err.Error())
			}
		}
		if !c.Writer.Written() {
			c.JSON(status, httpdto.NewErrorResponse(err))
		}
	}
}
