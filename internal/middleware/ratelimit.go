package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ActionLimiter is the shared limiter backend (redis in production).
type ActionLimiter interface {
	AllowAction(ctx context.Context, userID uuid.UUID, action string, rate int, burst int) (bool, error)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits per user and action. It asks the shared backend first
// and falls back to in-process buckets when the backend is absent or failing.
type RateLimiter struct {
	shared   ActionLimiter
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rps      int
	burst    int
}

func NewRateLimiter(rps, burst int, shared ActionLimiter) *RateLimiter {
	if burst <= 0 {
		burst = rps * 2
	}
	return &RateLimiter{
		shared:   shared,
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Allow reports whether the user may perform the action now.
func (rl *RateLimiter) Allow(ctx context.Context, userID uuid.UUID, action string) bool {
	if rl.shared != nil {
		ok, err := rl.shared.AllowAction(ctx, userID, action, rl.rps, rl.burst)
		if err == nil {
			return ok
		}
		log.Warn().Err(err).Str("action", action).Msg("shared rate limiter failed, using local limiter")
	}
	return rl.getLimiter(action + ":" + userID.String()).Allow()
}

// Cleanup drops limiters idle for more than ten minutes until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle(10 * time.Minute)
			}
		}
	}()
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// RateLimitMiddleware limits requests per user for the named action
func RateLimitMiddleware(rl *RateLimiter, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.Next()
			return
		}

		uid, ok := userID.(uuid.UUID)
		if !ok {
			c.Next()
			return
		}

		if !rl.Allow(c.Request.Context(), uid, action) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}
