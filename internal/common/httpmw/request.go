package httpmw

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/neuralhub/neuralhub/internal/common/logger"
)

// CorrelationID attaches a correlation id to the request context and echoes
// it back in the response. Incoming X-Correlation-Id headers are preserved so
// the bridge can stitch logs across processes.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-Id")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), logger.CorrelationIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", id)
		c.Next()
	}
}

// Deadline bounds each request with a timeout. In-flight I/O observes the
// cancelled context; committed writes are never rolled back on expiry.
func Deadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
