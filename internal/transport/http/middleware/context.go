package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader carries the trace ID across service boundaries.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey names the gin context entry holding the trace ID.
	TraceIDKey = "trace_id"
	// UserIDKey names the gin context entry holding the authenticated
	// caller, filled in by RequireAuth.
	UserIDKey = "user_id"
)

// RequestContext bundles the request-scoped metadata that log lines and
// error responses attach.
type RequestContext struct {
	TraceID   string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext seeds every request with a trace ID (propagated from the
// inbound header when present, generated otherwise) and a RequestContext.
// The caller identity stays empty until authentication runs.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		reqCtx := &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Set("request_context", reqCtx)

		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or empty when EnrichContext
// has not run.
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext returns the request metadata, never nil.
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get("request_context"); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
