package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/redis"
)

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	ProductKey(productID string) string
}

// RedisCache shares resolved snapshots across user sessions.
type RedisCache struct {
	store keyValueStore
	ttl   time.Duration
}

// NewRedisCache builds a snapshot cache over the redis client.
func NewRedisCache(store keyValueStore, ttl time.Duration) (*RedisCache, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	return &RedisCache{store: store, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, productID string) (Snapshot, bool, error) {
	raw, err := c.store.Get(ctx, c.store.ProductKey(productID))
	if errors.Is(err, redis.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get cached product: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode cached product: %w", err)
	}
	return snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	if err := c.store.Set(ctx, c.store.ProductKey(snapshot.ProductID), payload, c.ttl); err != nil {
		return fmt.Errorf("cache product: %w", err)
	}
	return nil
}
