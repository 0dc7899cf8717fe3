package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(cfg Config) (*RateLimitService, *time.Time) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	s := NewRateLimitService(cfg, zap.NewNop())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRateLimitService_BurstThenThrottle(t *testing.T) {
	s, _ := newTestService(Config{RatePerMinute: 6, Burst: 3, CleanupInterval: time.Minute})

	for i := 0; i < 3; i++ {
		assert.True(t, s.Allow("10.0.0.1").Allowed, "request %d within burst", i+1)
	}

	result := s.Allow("10.0.0.1")
	assert.False(t, result.Allowed)
	assert.Equal(t, 10*time.Second, result.RetryAfter)
}

func TestRateLimitService_Refill(t *testing.T) {
	s, now := newTestService(Config{RatePerMinute: 60, Burst: 1, CleanupInterval: time.Minute})

	require.True(t, s.Allow("k").Allowed)
	require.False(t, s.Allow("k").Allowed)

	*now = now.Add(time.Second)
	assert.True(t, s.Allow("k").Allowed)
}

func TestRateLimitService_KeysAreIndependent(t *testing.T) {
	s, _ := newTestService(Config{RatePerMinute: 1, Burst: 1, CleanupInterval: time.Minute})

	assert.True(t, s.Allow("a").Allowed)
	assert.False(t, s.Allow("a").Allowed)
	assert.True(t, s.Allow("b").Allowed)
	assert.Equal(t, 2, s.Len())
}

func TestRateLimitService_Cleanup(t *testing.T) {
	s, now := newTestService(Config{RatePerMinute: 10, Burst: 1, CleanupInterval: time.Minute})

	s.Allow("old")
	*now = now.Add(3 * time.Minute)
	s.Allow("fresh")

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
}

func TestRateLimitService_Defaults(t *testing.T) {
	s := NewRateLimitService(Config{RatePerMinute: 0, Burst: 0}, zap.NewNop())

	assert.True(t, s.Allow("k").Allowed)
	result := s.Allow("k")
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Minute, result.RetryAfter)
}

func TestRateLimitService_StartCleanupWorkerStops(t *testing.T) {
	s := NewRateLimitService(Config{RatePerMinute: 10, Burst: 1, CleanupInterval: 5 * time.Millisecond}, zap.NewNop())

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.StartCleanupWorker(stopCh)
		close(done)
	}()

	close(stopCh)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestRateLimitService_Concurrent(t *testing.T) {
	s, _ := newTestService(Config{RatePerMinute: 1, Burst: 50, CleanupInterval: time.Minute})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}
