package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xtrafr/chatvercel/pkg/logger"
	"golang.org/x/time/rate"
)

// RateLimitRepository: Allow возвращает разрешение и остаток запросов в окне
type RateLimitRepository interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

// NewRateLimitRepository - счетчик фиксированного окна в Redis (INCR + EXPIRE)
func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	key = "ratelimit:" + key

	n, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return false, 0, err
	}
	if n == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			r.log.Warn("Failed to set rate limit expiry", "error", err, "key", key)
		}
	}

	count := int(n)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}

type memoryLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type memoryRateLimitRepository struct {
	mu       sync.Mutex
	limiters map[string]*memoryLimiter
	lastGC   time.Time
	now      func() time.Time
}

// NewMemoryRateLimitRepository - token bucket на процесс, когда Redis не настроен
func NewMemoryRateLimitRepository() RateLimitRepository {
	return &memoryRateLimitRepository{
		limiters: make(map[string]*memoryLimiter),
		now:      time.Now,
	}
}

func (r *memoryRateLimitRepository) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if limit <= 0 {
		return false, 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.gcLocked(now, window)

	l, ok := r.limiters[key]
	if !ok {
		l = &memoryLimiter{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		r.limiters[key] = l
	}
	l.lastSeen = now

	allowed := l.limiter.AllowN(now, 1)
	remaining := int(l.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, nil
}

// gcLocked удаляет ключи, неактивные дольше двух окон
func (r *memoryRateLimitRepository) gcLocked(now time.Time, window time.Duration) {
	if now.Sub(r.lastGC) < window {
		return
	}
	r.lastGC = now
	for key, l := range r.limiters {
		if now.Sub(l.lastSeen) > 2*window {
			delete(r.limiters, key)
		}
	}
}
