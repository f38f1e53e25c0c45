package promotion

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("promotion not found")

type Store interface {
	GetPromotion(ctx context.Context, code string) (Promotion, error)
}

type Engine struct {
	Store Store
	Now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply validates code against the cart and prices it. It has no side effects;
// redemption is counted separately once the order is paid.
func (e *Engine) Apply(ctx context.Context, lines []Line, subtotalCents int64, code string) (Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Result{}, nil
	}

	p, err := e.Store.GetPromotion(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return Result{}, &InvalidError{Code: code, Reason: "unknown code"}
	}
	if err != nil {
		return Result{}, err
	}

	now := e.Now()
	if now.Before(p.StartAt) || now.After(p.EndAt) {
		return Result{}, &InvalidError{Code: code, Reason: "not active"}
	}
	if subtotalCents < p.MinSubtotalCents {
		return Result{}, &MinOrderError{Code: code, MinSubtotalCents: p.MinSubtotalCents, SubtotalCents: subtotalCents}
	}
	if p.UsageLimit > 0 && p.RedemptionCount >= p.UsageLimit {
		return Result{}, &InvalidError{Code: code, Reason: "usage limit reached"}
	}

	res := Result{Applied: &p}
	switch p.Type {
	case TypePercent:
		if p.Value <= 0 || p.Value > 100 {
			return Result{}, &InvalidError{Code: code, Reason: "misconfigured percent"}
		}
		d := subtotalCents * p.Value / 100
		if p.MaxDiscountCents > 0 && d > p.MaxDiscountCents {
			d = p.MaxDiscountCents
		}
		res.DiscountCents = d
	case TypeFixedAmount:
		if p.Value <= 0 {
			return Result{}, &InvalidError{Code: code, Reason: "misconfigured amount"}
		}
		res.DiscountCents = min(p.Value, subtotalCents)
	case TypeFreeShipping:
		res.FreeShipping = true
	case TypeBuyXGetY:
		if p.BuyQty <= 0 || p.GetQty <= 0 {
			return Result{}, &InvalidError{Code: code, Reason: "misconfigured buy/get quantities"}
		}
		res.DiscountCents = buyXGetY(p, lines)
	default:
		return Result{}, &InvalidError{Code: code, Reason: "unsupported type " + string(p.Type)}
	}
	return res, nil
}

// buyXGetY expands matching lines into units, most expensive first, and
// makes the GetQty cheapest units of every complete Buy+Get block free.
func buyXGetY(p Promotion, lines []Line) int64 {
	var units []int64
	for _, l := range lines {
		if !p.matches(l) {
			continue
		}
		for i := 0; i < l.Quantity; i++ {
			units = append(units, l.UnitPriceCents)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i] > units[j] })

	block := p.BuyQty + p.GetQty
	var discount int64
	for start := 0; start+block <= len(units); start += block {
		for _, price := range units[start+p.BuyQty : start+block] {
			discount += price
		}
	}
	return discount
}
