package middleware

import (
	"context"
	"strings"

	"shodh/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"
	UserIDHeader    = "X-User-Id"
)

// TraceConfig controls which ids are taken from request headers.
type TraceConfig struct {
	// TrustUserIDHeader copies X-User-Id into the request context.
	TrustUserIDHeader bool `yaml:"trustUserIdHeader"`
}

// Trace puts trace and request ids into the request context, the gin context
// and the response headers. Missing ids are generated.
func Trace(cfg TraceConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := headerOrNew(c, TraceIDHeader)
		ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
		c.Set(string(contextkey.TraceID), traceID)
		c.Writer.Header().Set(TraceIDHeader, traceID)

		requestID := headerOrNew(c, RequestIDHeader)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Set(string(contextkey.RequestID), requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		if cfg.TrustUserIDHeader {
			if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
				ctx = context.WithValue(ctx, contextkey.UserID, userID)
				c.Set(string(contextkey.UserID), userID)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNew(c *gin.Context, name string) string {
	if v := strings.TrimSpace(c.GetHeader(name)); v != "" {
		return v
	}
	return uuid.NewString()
}
