package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
)

// TraceID stores the caller's trace id, or a fresh uuid, on the context and echoes it back.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.Request.Header.Get(pkg.HeaderTraceId)
		if utils.IsEmpty(traceID) {
			traceID = uuid.New().String()
		}
		c.Set(pkg.TraceId, traceID)
		c.Writer.Header().Set(pkg.HeaderTraceId, traceID)
		c.Next()
	}
}

// GetTraceID returns the trace id set by TraceID, or "" outside that middleware.
func GetTraceID(c *gin.Context) string {
	return c.GetString(pkg.TraceId)
}
