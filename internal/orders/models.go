package orders

import (
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	"strings"
	"time"
)

type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID              string      `json:"id"`
	OrderNo         string      `json:"order_no"`
	UserID          string      `json:"user_id"`
	Status          Status      `json:"status"`
	SubtotalCents   int64       `json:"subtotal_cents"`
	ShippingCents   int64       `json:"shipping_cents"`
	DiscountCents   int64       `json:"discount_cents"`
	TotalCents      int64       `json:"total_cents"`
	ShippingAddress Address     `json:"shipping_address"`
	PromotionCode   string      `json:"promotion_code,omitempty"`
	ReservationID   string      `json:"-"`
	Items           []OrderItem `json:"items"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem keeps name and price as they were at checkout, independent of
// later catalog edits.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateOrderInput struct {
	UserID          string      `json:"user_id"`
	Items           []ItemInput `json:"items"`
	ShippingAddress Address     `json:"shipping_address"`
	PromotionCode   string      `json:"promotion_code,omitempty"`
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item required"}
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return &ValidationError{Field: "items", Reason: "product_id required at position " + itoa(i)}
		}
		if it.Qty <= 0 {
			return &ValidationError{Field: "items", Reason: "qty must be > 0 for " + it.ProductID}
		}
	}
	a := in.ShippingAddress
	for _, f := range []struct{ field, value string }{
		{"shipping_address.recipient", a.Recipient},
		{"shipping_address.line1", a.Line1},
		{"shipping_address.city", a.City},
		{"shipping_address.postal_code", a.PostalCode},
		{"shipping_address.country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: "required"}
		}
	}
	return nil
}

// mergeInputs sums duplicate product lines, keeping first-seen order.
func mergeInputs(items []ItemInput) []ItemInput {
	idx := make(map[string]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func reservationItems(items []OrderItem) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Item{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
