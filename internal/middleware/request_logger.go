package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		args := []any{
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", time.Since(start),
		}
		if sid, ok := c.Get(SessionIDKey); ok {
			args = append(args, "session_id", sid)
		}

		// токен в query не пишем, поэтому RawQuery опущен
		switch {
		case statusCode >= 500:
			log.Error("Request", args...)
		case statusCode >= 400:
			log.Warn("Request", args...)
		case path == "/api/messages" || path == "/health" || path == "/metrics":
			// poll идет каждые 2 секунды на клиента
			log.Debug("Request", args...)
		default:
			log.Info("Request", args...)
		}
	}
}
