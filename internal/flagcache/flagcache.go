// Package flagcache holds short-lived per-client flags in Redis. Keys carry
// an explicit TTL, so state cannot accumulate for the lifetime of the
// process the way an in-memory map would.
package flagcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luchan-pos/avocado-bonus/internal/model"
)

type Cache struct {
	client *redis.Client
	log    *slog.Logger
}

// New connects to Redis. An empty URI disables the cache: every lock
// attempt then succeeds and the DB uniqueness constraint stays the only
// duplicate guard.
func New(ctx context.Context, redisURI string, log *slog.Logger) (*Cache, error) {
	if redisURI == "" {
		log.LogAttrs(ctx, slog.LevelWarn,
			"redis URI not configured, running without flag cache")
		return &Cache{log: log}, nil
	}

	opt, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URI: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client, log: log}, nil
}

func receiptKey(clientID, receiptID string) string {
	return fmt.Sprintf("receipt-in-flight:%s:%s", clientID, receiptID)
}

// TryLockReceipt marks the receipt as in flight for the given TTL. It
// reports false when another request already holds the mark, letting the
// handler short-circuit a double submit before touching the database.
func (c *Cache) TryLockReceipt(ctx context.Context,
	clientID, receiptID string, ttl time.Duration,
) bool {
	if c.client == nil || receiptID == "" {
		return true
	}

	ok, err := c.client.SetNX(ctx, receiptKey(clientID, receiptID), 1, ttl).Result()
	if err != nil {
		c.log.LogAttrs(ctx,
			slog.LevelWarn,
			"flag cache unavailable, skipping in-flight guard",
			slog.Any(model.KeyLoggerError, err),
		)
		return true
	}
	return ok
}

// UnlockReceipt drops the in-flight mark early, once the request finished.
func (c *Cache) UnlockReceipt(ctx context.Context, clientID, receiptID string) {
	if c.client == nil || receiptID == "" {
		return
	}

	if err := c.client.Del(ctx, receiptKey(clientID, receiptID)).Err(); err != nil {
		c.log.LogAttrs(ctx,
			slog.LevelWarn,
			"failed to drop in-flight mark",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (c *Cache) Close() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to close redis connection",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
