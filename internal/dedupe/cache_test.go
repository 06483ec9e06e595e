package dedupe

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestSeenOnlyAfterRemember(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, 5*time.Minute, nil)

	campaignID := uuid.New()
	// Seen is read-only: probing must never claim the key itself.
	if cache.Seen(context.Background(), campaignID, "h1") {
		t.Fatal("unremembered hash must not be seen")
	}
	if cache.Seen(context.Background(), campaignID, "h1") {
		t.Fatal("repeated probe must still not be seen until remembered")
	}

	cache.Remember(context.Background(), campaignID, "h1")
	if !cache.Seen(context.Background(), campaignID, "h1") {
		t.Fatal("remembered hash must be seen within window")
	}
	// Same hash under a different campaign is a different event.
	if cache.Seen(context.Background(), uuid.New(), "h1") {
		t.Fatal("other campaign must not be seen")
	}
}

func TestRememberExpiresWithWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, 5*time.Minute, nil)

	campaignID := uuid.New()
	cache.Remember(context.Background(), campaignID, "h2")
	mr.FastForward(6 * time.Minute)
	if cache.Seen(context.Background(), campaignID, "h2") {
		t.Fatal("delivery after the window must not be seen")
	}
}

func TestSeenDegradesWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, nil)
	mr.Close()

	if cache.Seen(context.Background(), uuid.New(), "h3") {
		t.Fatal("redis failure must report not seen")
	}
	cache.Remember(context.Background(), uuid.New(), "h3")
}

func TestNilCache(t *testing.T) {
	var cache *Cache
	if cache.Seen(context.Background(), uuid.New(), "h4") {
		t.Fatal("nil cache must report not seen")
	}
	cache.Remember(context.Background(), uuid.New(), "h4")
}
