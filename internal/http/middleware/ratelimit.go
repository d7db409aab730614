package middleware

import (
	"errors"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/ratelimit"
)

// RateLimitConfig configures the per-credential sliding-window limiter.
type RateLimitConfig struct {
	Limiter      *ratelimit.Limiter
	DefaultLimit int // fallback when the credential carries no limit of its own
}

// RateLimitMiddleware applies the per-key quota. It expects the identity set
// by APIKeyMiddleware and decorates every response with X-RateLimit-* headers.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromCtx(c)
			if !ok {
				return next(c)
			}

			limit := cfg.DefaultLimit
			if id.RateLimitPerWindow > 0 {
				limit = id.RateLimitPerWindow
			}
			if limit <= 0 || cfg.Limiter == nil {
				// no limit configured (dev): allow
				return next(c)
			}

			d, err := cfg.Limiter.Allow(c.Request().Context(), id.KeyID, limit)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(d.ResetAfter))

			if errors.Is(err, ratelimit.ErrRateLimited) {
				metrics.AuthTotal.WithLabelValues("rate_limited").Inc()
				h.Set("Retry-After", strconv.Itoa(d.ResetAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}

			return next(c)
		}
	}
}
