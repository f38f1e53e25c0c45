package promotion

import (
	"fmt"
	"time"
)

type Type string

const (
	TypePercent      Type = "PERCENT"
	TypeFixedAmount  Type = "FIXED_AMOUNT"
	TypeFreeShipping Type = "FREE_SHIPPING"
	TypeBuyXGetY     Type = "BUY_X_GET_Y"
)

type Promotion struct {
	Code             string
	Type             Type
	Value            int64 // percent for PERCENT, cents for FIXED_AMOUNT
	MaxDiscountCents int64 // PERCENT cap, 0 = none
	BuyQty           int   // BUY_X_GET_Y
	GetQty           int   // BUY_X_GET_Y
	ProductIDs       []string
	CategoryIDs      []string
	MinSubtotalCents int64
	StartAt          time.Time
	EndAt            time.Time
	UsageLimit       int // 0 = unlimited
	RedemptionCount  int
}

// Line is one cart line as priced by the catalog.
type Line struct {
	ProductID      string
	CategoryID     string
	UnitPriceCents int64
	Quantity       int
}

type Result struct {
	DiscountCents int64
	FreeShipping  bool
	Applied       *Promotion
}

// InvalidError: unknown, outside its window, exhausted or misconfigured.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("promotion %q is not valid: %s", e.Code, e.Reason)
}

type MinOrderError struct {
	Code             string
	MinSubtotalCents int64
	SubtotalCents    int64
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("promotion %q requires subtotal >= %d, got %d", e.Code, e.MinSubtotalCents, e.SubtotalCents)
}

func (p Promotion) matches(l Line) bool {
	if len(p.ProductIDs) == 0 && len(p.CategoryIDs) == 0 {
		return true
	}
	for _, id := range p.ProductIDs {
		if id == l.ProductID {
			return true
		}
	}
	for _, c := range p.CategoryIDs {
		if c == l.CategoryID {
			return true
		}
	}
	return false
}
