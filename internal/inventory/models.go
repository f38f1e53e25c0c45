package inventory

import (
	"fmt"
	"time"
)

type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type LineStatus string

const (
	LineHeld      LineStatus = "HELD"
	LineReleased  LineStatus = "RELEASED"
	LineCommitted LineStatus = "COMMITTED"
)

// Reservation is a hold on stock for one unsettled order.
type Reservation struct {
	ID        string
	OrderID   string
	Items     []Item
	CreatedAt time.Time
}

// Level is one inventory row. 0 <= Reserved <= Stock always holds.
type Level struct {
	ProductID string
	Stock     int
	Reserved  int
}

func (l Level) Available() int { return l.Stock - l.Reserved }

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type InvalidItemError struct {
	ProductID string
	Qty       int
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid reservation item %q qty=%d", e.ProductID, e.Qty)
}
