package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSentTTL = 24 * time.Hour

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// SentGuard records the dedup keys of outbound mail so the same content is
// handed to the mail transport at most once, even when it is enqueued twice.
// Key format: mail:sent:<dedup_key>, e.g. mail:sent:confirmation:<account_id>:<code>
type SentGuard struct {
	client setNXer
	ttl    time.Duration
}

// NewSentGuard wraps client. A non-positive ttl selects defaultSentTTL.
func NewSentGuard(client setNXer, ttl time.Duration) *SentGuard {
	if ttl <= 0 {
		ttl = defaultSentTTL
	}
	return &SentGuard{client: client, ttl: ttl}
}

// Claim marks key as sent and reports whether this caller was first.
func (g *SentGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sent guard claim: %w", err)
	}
	return ok, nil
}

func (g *SentGuard) key(dedupKey string) string {
	return "mail:sent:" + dedupKey
}
