package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/redis/go-redis/v9"
	"time"
)

// OrderCache is the read-through cache behind GET /orders/{id}. Entries are
// dropped on every status transition, so TTL only bounds memory.
type OrderCache struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func NewOrderCache(rdb redis.Cmdable) *OrderCache {
	return &OrderCache{RDB: rdb, TTL: TTLOrderCache}
}

func (c *OrderCache) GetOrder(ctx context.Context, id string) (orders.Order, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, fmt.Errorf("decode cached order %s: %w", id, err)
	}
	return o, true, nil
}

func (c *OrderCache) SetOrder(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrder, o.ID), b, c.TTL).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}
