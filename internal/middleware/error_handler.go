package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := errors.HTTPStatusFromError(err)
		if statusCode >= 500 {
			log.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		}

		c.JSON(statusCode, errors.ToAPIError(err))
	}
}
