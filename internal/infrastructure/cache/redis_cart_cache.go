// Package cache holds read-through caches in front of the SQL store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/agent-commerce/internal/domain/cart"
)

const DefaultCartTTL = 15 * time.Minute

// RedisCartCache stores carts as JSON under cart:{session}.
type RedisCartCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCartCache(client redis.UniversalClient, ttl time.Duration) *RedisCartCache {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &RedisCartCache{client: client, ttl: ttl}
}

func (r *RedisCartCache) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if c.Lines == nil {
		c.Lines = []cart.Line{}
	}
	return &c, nil
}

func (r *RedisCartCache) Set(ctx context.Context, c *cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(c.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCartCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *RedisCartCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
