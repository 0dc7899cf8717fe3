package ratelimit

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds configuration for the RateLimitService
type Config struct {
	RatePerMinute   float64       // Sustained requests per minute per key
	Burst           int           // Requests allowed at once before throttling
	CleanupInterval time.Duration // How often idle keys are forgotten
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		RatePerMinute:   20,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimitService throttles requests per key (client IP for sign-in) with token buckets.
// State lives in process memory.
type RateLimitService struct {
	config   Config
	limit    rate.Limit
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(config Config, logger *zap.Logger) *RateLimitService {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	return &RateLimitService{
		config:   config,
		limit:    rate.Limit(config.RatePerMinute / 60.0),
		limiters: make(map[string]*keyLimiter),
		logger:   logger,
		now:      time.Now,
	}
}

// Allow consumes one token for key
func (s *RateLimitService) Allow(key string) RateLimitResult {
	now := s.now()

	s.mu.Lock()
	kl, ok := s.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(s.limit, s.config.Burst)}
		s.limiters[key] = kl
	}
	kl.lastAccess = now
	s.mu.Unlock()

	if kl.limiter.AllowN(now, 1) {
		return RateLimitResult{Allowed: true}
	}

	s.logger.Warn("rate limit exceeded", zap.String("key", key))
	return RateLimitResult{Allowed: false, RetryAfter: s.retryAfter()}
}

// retryAfter is the time one token takes to refill, rounded up to whole seconds
func (s *RateLimitService) retryAfter() time.Duration {
	if s.limit <= 0 {
		return time.Minute
	}
	secs := math.Ceil(1.0 / float64(s.limit))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Cleanup forgets keys idle for more than two cleanup intervals
func (s *RateLimitService) Cleanup() int {
	ttl := s.config.CleanupInterval * 2
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker runs Cleanup every CleanupInterval until stopCh is closed
func (s *RateLimitService) StartCleanupWorker(stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-stopCh:
			return
		}
	}
}

// Len returns the number of tracked keys
func (s *RateLimitService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
