package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// RankingCache keeps the top-mileage member ranking in Redis so the
// leaderboard read path does not hit Postgres on every request. A nil cache
// is valid and disables caching.
type RankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRankingCache builds a cache around an existing Redis client.
func NewRankingCache(client *redis.Client, ttl time.Duration) *RankingCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RankingCache{client: client, ttl: ttl}
}

func rankingKey(n int) string {
	return fmt.Sprintf("mileage:ranking:top:%d", n)
}

// GetTop returns the cached ranking, or (nil, false) on miss or any error.
func (c *RankingCache) GetTop(ctx context.Context, n int) ([]domain.Member, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, rankingKey(n)).Bytes()
	if err != nil {
		return nil, false
	}
	var members []domain.Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, false
	}
	return members, true
}

// SetTop stores the ranking with the configured TTL. Failures are ignored;
// the cache is an optimization, not a source of truth.
func (c *RankingCache) SetTop(ctx context.Context, n int, members []domain.Member) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := marshalRanking(members)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, rankingKey(n), raw, c.ttl).Err()
}

// marshalRanking serializes the ranking without password hashes. Credentials
// must never land in Redis.
func marshalRanking(members []domain.Member) ([]byte, error) {
	view := make([]domain.Member, len(members))
	copy(view, members)
	for i := range view {
		view[i].PasswordHash = ""
	}
	return json.Marshal(view)
}

// Invalidate drops all cached rankings after a mileage or membership write.
func (c *RankingCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, "mileage:ranking:top:*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
