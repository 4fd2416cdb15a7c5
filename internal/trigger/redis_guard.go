package trigger

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisGuard shares the inline throttle across instances with one
// SET key NX PX entry per check. Like LocalGuard it only sheds load.
// When Redis is unreachable it lets the check run.
type RedisGuard struct {
	client redis.Cmdable
	prefix string
	window time.Duration
	logger *zap.Logger
}

func NewRedisGuard(client redis.Cmdable, prefix string, window time.Duration, logger *zap.Logger) *RedisGuard {
	if prefix == "" {
		prefix = "notifier:inline:"
	}
	return &RedisGuard{client: client, prefix: prefix, window: window, logger: logger}
}

func (g *RedisGuard) Allow(ctx context.Context, name string) bool {
	ok, err := g.client.SetNX(ctx, g.prefix+name, time.Now().UnixMilli(), g.window).Result()
	if err != nil {
		g.logger.Warn("redis guard unavailable, allowing check", zap.String("check", name), zap.Error(err))
		return true
	}
	return ok
}
