package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"
const TraceIDHeader = "X-Trace-ID"

// TraceID stamps every request with a trace id, echoed in the response
// header and recorded in request logs and admin audit entries. A caller
// supplied X-Trace-ID is kept only when it is a UUID; anything else is
// replaced so stored ids stay fixed width.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := normalizeTraceID(c.GetHeader(TraceIDHeader))
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

func normalizeTraceID(h string) string {
	if h != "" && len(h) <= 45 {
		if id, err := uuid.Parse(h); err == nil {
			return id.String()
		}
	}
	return uuid.New().String()
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
