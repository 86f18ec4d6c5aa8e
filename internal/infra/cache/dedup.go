// Package cache holds the Redis backed webhook delivery filter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// Deduper short-circuits redelivered webhooks before they reach the
// database. The ledger's own replay check stays authoritative; this only
// saves work.
type Deduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func Key(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

// Claim marks a delivery as in progress. It reports false when another
// delivery of the same event already holds the claim. When Redis is
// unavailable the claim is granted and the error returned for logging.
func (d *Deduper) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, Key(provider, eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("redis claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the gateway's retry is processed.
func (d *Deduper) Release(ctx context.Context, provider, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, Key(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
