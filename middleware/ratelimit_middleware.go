package middleware

import (
	"net/http"
	"strconv"

	"github.com/upb/academic-records/internal/observability"
	"github.com/upb/academic-records/services/ratelimit"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// RateLimiter defines the interface for rate limit checking
type RateLimiter interface {
	Allow(key string) ratelimit.RateLimitResult
}

// RateLimitMiddleware throttles requests per client address
type RateLimitMiddleware struct {
	limiter RateLimiter
	metrics observability.Metrics
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware. metrics may be nil.
func NewRateLimitMiddleware(limiter RateLimiter, metrics observability.Metrics, logger *zap.Logger) *RateLimitMiddleware {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Limit returns a middleware that answers 429 with Retry-After once a client
// exceeds its budget. route labels the rejection metric.
func (m *RateLimitMiddleware) Limit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			result := m.limiter.Allow(route + "|" + client)
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			m.logger.Warn("request blocked by rate limit",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("route", route),
				zap.String("client", client))
			m.metrics.RecordRateLimited(route)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many requests, try again later", map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
		})
	}
}
