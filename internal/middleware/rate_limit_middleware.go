package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
)

// RateLimitConfig содержит настройки rate limiting
type RateLimitConfig struct {
	// MaxRequests — максимальное количество запросов за Window
	MaxRequests int
	// Window — временное окно для подсчёта запросов
	Window time.Duration
	// KeyPrefix — префикс для ключей счётчиков
	KeyPrefix string
}

// DefaultKeysRateLimitConfig — лимит по умолчанию для generate/serve
func DefaultKeysRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 60,
		Window:      1 * time.Minute,
		KeyPrefix:   "rl:keys",
	}
}

// WindowCounter считает запросы в фиксированном окне.
// Возвращает номер запроса в текущем окне и время до его сброса.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisWindowCounter — общий для инстансов счётчик на INCR + EXPIRE
type RedisWindowCounter struct {
	client redis.UniversalClient
}

func NewRedisWindowCounter(client redis.UniversalClient) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

func (r *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// Если это первый запрос в окне — устанавливаем TTL
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			logger.L().Warn("rate limiter: failed to set TTL", zap.String("key", key), logger.Err(err))
		}
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

// MemoryWindowCounter — счётчик в памяти процесса (go-cache), когда Redis отключён
type MemoryWindowCounter struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryWindowCounter() *MemoryWindowCounter {
	return &MemoryWindowCounter{cache: gocache.New(time.Minute, time.Minute)}
}

func (m *MemoryWindowCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, expiresAt, found := m.cache.GetWithExpiration(key); found {
		// окно могло истечь между чтением и инкрементом: тогда открываем новое
		if count, err := m.cache.IncrementInt64(key, 1); err == nil {
			return count, time.Until(expiresAt), nil
		}
	}
	m.cache.Set(key, int64(1), window)
	return 1, window, nil
}

// RateLimiter создаёт middleware для rate limiting
type RateLimiter struct {
	counter WindowCounter
}

// NewRateLimiter создает RateLimiter поверх Redis; без клиента счётчики хранятся в памяти
func NewRateLimiter(redisClient redis.UniversalClient) *RateLimiter {
	if redisClient == nil {
		return &RateLimiter{counter: NewMemoryWindowCounter()}
	}
	return &RateLimiter{counter: NewRedisWindowCounter(redisClient)}
}

// NewRateLimiterWithCounter создает RateLimiter с произвольным счётчиком
func NewRateLimiterWithCounter(counter WindowCounter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Limit возвращает Gin middleware с заданной конфигурацией
// Ключ формируется из IP + endpoint path
func (rl *RateLimiter) Limit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.FullPath() // шаблон маршрута, например "/block/:key"
		if path == "" {
			path = c.Request.URL.Path
		}

		key := fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, clientIP, path)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, ttl, err := rl.counter.Hit(ctx, key, cfg.Window)
		if err != nil {
			// При ошибке хранилища пропускаем запрос (fail-open), но логируем
			logger.From(c.Request.Context()).Warn("rate limiter error, allowing request", zap.String("key", key), logger.Err(err))
			c.Next()
			return
		}

		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		retryAfter := int(ttl.Seconds())
		if retryAfter <= 0 {
			retryAfter = 1
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

		if int(count) > cfg.MaxRequests {
			logger.From(c.Request.Context()).Warn("rate limit exceeded",
				logger.ClientIP(clientIP), zap.Int64("count", count), zap.Int("limit", cfg.MaxRequests))

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"error_type":  "rate_limited",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
