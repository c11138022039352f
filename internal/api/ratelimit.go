package api

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter shared by every instance.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(r.limit), nil
}

// RateLimit throttles per authenticated user, falling back to the client IP. A
// limiter outage lets requests through.
func RateLimit(l Limiter, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := identity(c).UserID
		if key == "" {
			key = "ip:" + c.IP()
		}
		ok, err := l.Allow(c.UserContext(), key)
		if err != nil {
			log.Warnw("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}
		if !ok {
			return apperr.RateLimited("rate limit exceeded")
		}
		return c.Next()
	}
}
