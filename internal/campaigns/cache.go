package campaigns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadline-hq/leadline/pkg/logging"
)

// Resolver resolves a campaign by webhook key.
type Resolver interface {
	ByWebhookKey(ctx context.Context, key string) (Campaign, error)
}

// CachedResolver fronts a Resolver with a short-lived redis cache so hot
// webhook keys don't hit Postgres on every delivery. Cache failures degrade
// to store reads; a stale entry can outlive a config change by at most the TTL.
type CachedResolver struct {
	inner  Resolver
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedResolver(inner Resolver, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedResolver {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedResolver{inner: inner, redis: redisClient, ttl: ttl, logger: logger}
}

func (r *CachedResolver) key(webhookKey string) string {
	return fmt.Sprintf("campaign:webhook:%s", webhookKey)
}

// ByWebhookKey returns the cached campaign when present, otherwise reads
// through to the underlying resolver and caches the result.
func (r *CachedResolver) ByWebhookKey(ctx context.Context, webhookKey string) (Campaign, error) {
	if r.redis != nil {
		data, err := r.redis.Get(ctx, r.key(webhookKey)).Bytes()
		if err == nil {
			var c Campaign
			if err := json.Unmarshal(data, &c); err == nil {
				return c, nil
			}
		} else if err != redis.Nil {
			r.logger.Warn("campaign cache read failed", "error", err)
		}
	}

	c, err := r.inner.ByWebhookKey(ctx, webhookKey)
	if err != nil {
		return Campaign{}, err
	}

	if r.redis != nil {
		data, err := json.Marshal(c)
		if err == nil {
			if err := r.redis.Set(ctx, r.key(webhookKey), data, r.ttl).Err(); err != nil {
				r.logger.Warn("campaign cache write failed", "error", err)
			}
		}
	}
	return c, nil
}
