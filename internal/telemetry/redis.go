package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luki/scm10/internal/session"
)

// LastKey holds the most recent Reading as JSON.
const LastKey = "scm10:last"

const lastTTL = 24 * time.Hour

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// setter is the part of *redis.Client the cache uses.
type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores the last sample of the session under LastKey.
type RedisCache struct {
	rdb    setter
	close  func() error
	logger *slog.Logger
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("telemetry: redis ping %s: %w", cfg.Addr, err)
	}
	c := newRedisCache(rdb, logger)
	c.close = rdb.Close
	return c, nil
}

func newRedisCache(rdb setter, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, logger: logger}
}

func (c *RedisCache) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// Store writes ev when it is a sample; other events are ignored.
func (c *RedisCache) Store(ctx context.Context, ev session.Event) error {
	if ev.Kind != session.EventSample {
		return nil
	}
	payload, err := json.Marshal(readingOf(ev))
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, LastKey, payload, lastTTL).Err()
}

func (c *RedisCache) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.Store(ctx, ev); err != nil {
				c.logger.Warn("redis store failed", "key", LastKey, "error", err)
			}
		}
	}
}
