package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderCanceled  = "OrderCanceled"
	EventOrderExpired   = "OrderExpired"
	EventOrderFulfilled = "OrderFulfilled"
	EventOrderRefunded  = "OrderRefunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQtyPrice struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderEventPayload is shared by every lifecycle event.
type OrderEventPayload struct {
	OrderID       string         `json:"order_id"`
	OrderNo       string         `json:"order_no"`
	UserID        string         `json:"user_id"`
	Status        Status         `json:"status"`
	TotalCents    int64          `json:"total_cents"`
	PromotionCode string         `json:"promotion_code,omitempty"`
	Items         []ItemQtyPrice `json:"items,omitempty"`
}

func NewEventPayload(o Order) OrderEventPayload {
	items := make([]ItemQtyPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQtyPrice{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents})
	}
	return OrderEventPayload{
		OrderID:       o.ID,
		OrderNo:       o.OrderNo,
		UserID:        o.UserID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		PromotionCode: o.PromotionCode,
		Items:         items,
	}
}

func eventFor(s Status) string {
	switch s {
	case StatusPending:
		return EventOrderCreated
	case StatusPaid:
		return EventOrderPaid
	case StatusCanceled:
		return EventOrderCanceled
	case StatusExpired:
		return EventOrderExpired
	case StatusFulfilled:
		return EventOrderFulfilled
	case StatusRefunded:
		return EventOrderRefunded
	}
	return ""
}
