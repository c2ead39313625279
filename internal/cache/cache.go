// Package cache is a Redis read cache for orders. Entries are invalidated by
// deletion after every mutation, never updated in place.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wasil/internal/types"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	redis        *redis.Client
	orderTTL     time.Duration
	orderListTTL time.Duration
}

func New(client *redis.Client, orderTTL, orderListTTL time.Duration) *Cache {
	return &Cache{redis: client, orderTTL: orderTTL, orderListTTL: orderListTTL}
}

func orderKey(id types.ID) string    { return "order:" + string(id) }
func userListKey(id types.ID) string { return "orders:user:" + string(id) }

func (c *Cache) GetOrder(ctx context.Context, id types.ID, dst any) error {
	return c.get(ctx, orderKey(id), dst)
}

func (c *Cache) SetOrder(ctx context.Context, id types.ID, v any) error {
	return c.set(ctx, orderKey(id), v, c.orderTTL)
}

func (c *Cache) GetUserOrders(ctx context.Context, userID types.ID, dst any) error {
	return c.get(ctx, userListKey(userID), dst)
}

func (c *Cache) SetUserOrders(ctx context.Context, userID types.ID, v any) error {
	return c.set(ctx, userListKey(userID), v, c.orderListTTL)
}

// Invalidate drops both the single-order entry and the owner's list entry.
func (c *Cache) Invalidate(ctx context.Context, orderID, userID types.ID) error {
	return c.redis.Del(ctx, orderKey(orderID), userListKey(userID)).Err()
}

func (c *Cache) get(ctx context.Context, key string, dst any) error {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(raw, dst)
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	return c.redis.Set(ctx, key, raw, ttl).Err()
}
