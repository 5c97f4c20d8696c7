package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/azniosman/vms/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for authenticated user ID
	UserIDKey = "user_id"

	sessionKey   = "session"
	sessionIDKey = "session_id"
)

// EnrichContext assigns a trace id, preferring the active span, then the inbound header.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = c.GetHeader(TraceIDHeader)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// CurrentSession returns the session attached by RequireSession.
func CurrentSession(c *gin.Context) (domain.UserSession, bool) {
	val, ok := c.Get(sessionKey)
	if !ok {
		return domain.UserSession{}, false
	}
	sess, ok := val.(domain.UserSession)
	return sess, ok
}

// CurrentSessionID returns the bearer session id accepted by RequireSession.
func CurrentSessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
