package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/utils"
)

const limiterIdleTTL = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter is a per-client token bucket keyed by client IP (or user id when signed in).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per minute with a burst of half that.
func NewRateLimiter(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
	}
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for k, l := range rl.limiters {
		if now.After(l.expires) {
			delete(rl.limiters, k)
		}
	}

	l, ok := rl.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.expires = now.Add(limiterIdleTTL)
	return l.limiter.Allow()
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.ClientIP()
		if uid, ok := UserID(ctx); ok {
			key = "user:" + strconv.FormatUint(uint64(uid), 10)
		}
		if !rl.Allow(key) {
			utils.Sugar.Warnw("rate limit exceeded", "key", key, "path", ctx.FullPath())
			utils.AbortError(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

// RateLimitMiddleware builds a limiter from the configured requests-per-minute.
func RateLimitMiddleware() gin.HandlerFunc {
	return NewRateLimiter(config.Get().RateLimitPerMinute).Middleware()
}
