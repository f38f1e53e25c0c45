package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// Dedup remembers processed deliveries for TTL. Keys are namespaced per service.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
	TTL     time.Duration
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{RDB: rdb, Service: service, TTL: TTLDedup}
}

func (d *Dedup) key(k string) string { return fmt.Sprintf(KeyDedup, d.Service, k) }

func (d *Dedup) Seen(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, d.RDB, d.key(key))
}

func (d *Dedup) Mark(ctx context.Context, key string) error {
	return d.RDB.Set(ctx, d.key(key), 1, d.TTL).Err()
}
