package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// RateLimiter counts requests per client IP in fixed windows held in the
// shared cache, so every server instance sees the same counters.
type RateLimiter struct {
	cache  ports.Cache
	limit  int
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing limit requests per window.
func NewRateLimiter(cache ports.Cache, limit int, window time.Duration, log zerolog.Logger) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		log:    log.With().Str("component", "rate_limiter").Logger(),
		now:    time.Now,
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// The limiter fails open when the cache is unreachable.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.cache == nil || rl.limit <= 0 {
			c.Next()
			return
		}

		bucket := rl.now().Unix() / int64(rl.window/time.Second)
		key := config.CacheKey.LoginAttemptsKey(c.ClientIP(), bucket)
		n, err := rl.cache.Incr(c.Request.Context(), key, rl.window)
		if err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit counter unavailable")
			c.Next()
			return
		}

		if n > int64(rl.limit) {
			c.Header("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
