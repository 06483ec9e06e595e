package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadline-hq/leadline/pkg/logging"
)

// Cache is a redis fast path in front of the store's dedup window query.
// Seen is a read-only check; keys are written via Remember only after the
// interaction row exists, so a cache hit always corresponds to a persisted
// event. Redis being down degrades to "not seen" so the store query stays
// authoritative.
type Cache struct {
	redis  *redis.Client
	window time.Duration
	logger *logging.Logger
}

func NewCache(redisClient *redis.Client, window time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Cache{redis: redisClient, window: window, logger: logger}
}

func (c *Cache) key(campaignID uuid.UUID, hash string) string {
	return fmt.Sprintf("dedupe:%s:%s", campaignID, hash)
}

// Seen reports whether (campaignID, hash) was remembered within the window.
// Errors are logged and reported as not seen.
func (c *Cache) Seen(ctx context.Context, campaignID uuid.UUID, hash string) bool {
	if c == nil || c.redis == nil {
		return false
	}
	exists, err := c.redis.Exists(ctx, c.key(campaignID, hash)).Result()
	if err != nil {
		c.logger.Warn("dedupe cache unavailable", "error", err)
		return false
	}
	return exists > 0
}

// Remember records (campaignID, hash) for the window. Called only once the
// interaction is durably persisted; best-effort, a failed write just means
// the next delivery falls through to the store query.
func (c *Cache) Remember(ctx context.Context, campaignID uuid.UUID, hash string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(campaignID, hash), 1, c.window).Err(); err != nil {
		c.logger.Warn("dedupe cache write failed", "error", err)
	}
}
