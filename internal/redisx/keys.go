package redisx

import "time"

const (
	// Cache order: order:{order_id} -> JSON orders.Order
	KeyOrder = "order:%s"

	// Dedup webhook: dedup:{service}:{provider}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
