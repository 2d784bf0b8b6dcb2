package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"example.com/crypto-checkout/pkg/logger"
)

const prefixRate = "payment:rate:" // payment:rate:{client_ip}

// fixedWindow атомарно увеличивает счётчик и ставит TTL окна на первом запросе.
var fixedWindow = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimitConfig — конфигурация RateLimiter.
type RateLimitConfig struct {
	Redis  *redis.Client
	Limit  int           // по умолчанию 100
	Window time.Duration // по умолчанию 1 минута
}

// RateLimiter ограничивает число запросов с одного IP за окно.
// При недоступности Redis запросы пропускаются.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter создаёт RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{redis: cfg.Redis, limit: cfg.Limit, window: cfg.Window}
}

// Handle возвращает gin middleware.
func (m *RateLimiter) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())
		clientIP := c.ClientIP()

		allowed, remaining, err := m.check(c, prefixRate+clientIP)
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка проверки rate limit")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			log.Warn().Str("client_ip", clientIP).Int("limit", m.limit).Msg("Rate limit превышен")

			retryAfter := int(m.window.Seconds())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("Превышен лимит запросов. Попробуйте через %d секунд", retryAfter),
			})
			return
		}

		c.Next()
	}
}

func (m *RateLimiter) check(c *gin.Context, key string) (bool, int, error) {
	count, err := fixedWindow.Run(c.Request.Context(), m.redis, []string{key}, int(m.window.Seconds())).Int()
	if err != nil {
		return true, m.limit, err
	}

	remaining := m.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= m.limit, remaining, nil
}
