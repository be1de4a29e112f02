package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/contextkey"
	"shodh/pkg/utils/logger"
	"shodh/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateKeyPrefix = "shodh:rate:"

// Limiter records a hit on key and fails once max is exceeded within window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) error
}

// RateLimitPolicy holds per-route limits. Zero disables a dimension.
type RateLimitPolicy struct {
	Enabled bool          `yaml:"enabled"`
	Window  time.Duration `yaml:"window"`
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
}

// RateLimit enforces policy on routeKey. Only TooManyRequests rejects the
// request; limiter failures are logged and the request goes through.
func RateLimit(limiter Limiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !policy.Enabled {
			c.Next()
			return
		}

		if policy.IPMax > 0 {
			key := fmt.Sprintf("%sip:%s:%s", rateKeyPrefix, c.ClientIP(), routeKey)
			if !allow(c, limiter, key, policy.IPMax, policy.Window) {
				return
			}
		}
		if policy.UserMax > 0 {
			if userID, ok := rateUserID(c); ok {
				key := fmt.Sprintf("%suser:%v:%s", rateKeyPrefix, userID, routeKey)
				if !allow(c, limiter, key, policy.UserMax, policy.Window) {
					return
				}
			}
		}
		c.Next()
	}
}

func allow(c *gin.Context, limiter Limiter, key string, max int, window time.Duration) bool {
	err := limiter.Allow(c.Request.Context(), key, max, window)
	if err == nil {
		return true
	}
	if appErr.Is(err, appErr.TooManyRequests) {
		response.AbortWithError(c, err)
		return false
	}
	logger.Warn(c.Request.Context(), "rate limit check failed", zap.String("key", key), zap.Error(err))
	return true
}

// rateUserID prefers the header user id and falls back to the userId field of
// a JSON body. The body is restored for the handler.
func rateUserID(c *gin.Context) (string, bool) {
	if userID, ok := c.Get(string(contextkey.UserID)); ok {
		return fmt.Sprint(userID), true
	}
	if c.Request.Body == nil || !strings.Contains(c.ContentType(), "json") {
		return "", false
	}
	raw, err := io.ReadAll(c.Request.Body)
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	var body struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", false
	}
	id := strings.Trim(strings.TrimSpace(string(body.UserID)), `"`)
	if id == "" || id == "null" {
		return "", false
	}
	return id, true
}
