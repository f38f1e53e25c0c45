package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]Promotion

func (m memStore) GetPromotion(_ context.Context, code string) (Promotion, error) {
	p, ok := m[code]
	if !ok {
		return Promotion{}, ErrNotFound
	}
	return p, nil
}

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func window(p Promotion) Promotion {
	p.StartAt = now.Add(-24 * time.Hour)
	p.EndAt = now.Add(24 * time.Hour)
	return p
}

func newEngine(ps ...Promotion) *Engine {
	st := memStore{}
	for _, p := range ps {
		st[p.Code] = p
	}
	e := NewEngine(st)
	e.Now = func() time.Time { return now }
	return e
}

func TestApplyWelcome10(t *testing.T) {
	e := newEngine(window(Promotion{Code: "WELCOME10", Type: TypePercent, Value: 10, MinSubtotalCents: 500000}))

	res, err := e.Apply(context.Background(), nil, 600000, " welcome10 ")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), res.DiscountCents)
	require.NotNil(t, res.Applied)
	assert.Equal(t, "WELCOME10", res.Applied.Code)
}

func TestApplyNoCode(t *testing.T) {
	e := newEngine()
	res, err := e.Apply(context.Background(), nil, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestApplyValidationOrder(t *testing.T) {
	expired := Promotion{Code: "OLD", Type: TypePercent, Value: 10, MinSubtotalCents: 999999,
		StartAt: now.Add(-48 * time.Hour), EndAt: now.Add(-time.Hour)}
	future := Promotion{Code: "SOON", Type: TypePercent, Value: 10,
		StartAt: now.Add(time.Hour), EndAt: now.Add(48 * time.Hour)}
	exhausted := window(Promotion{Code: "GONE", Type: TypeFixedAmount, Value: 500, MinSubtotalCents: 100000, UsageLimit: 3, RedemptionCount: 3})
	e := newEngine(expired, future, exhausted)

	var inv *InvalidError
	var minErr *MinOrderError

	_, err := e.Apply(context.Background(), nil, 100, "NOPE")
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "unknown code", inv.Reason)

	// window is checked before the threshold
	_, err = e.Apply(context.Background(), nil, 100, "OLD")
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "not active", inv.Reason)

	_, err = e.Apply(context.Background(), nil, 100, "SOON")
	require.True(t, errors.As(err, &inv))

	// threshold is checked before usage limit
	_, err = e.Apply(context.Background(), nil, 50000, "GONE")
	require.True(t, errors.As(err, &minErr))
	assert.Equal(t, int64(100000), minErr.MinSubtotalCents)

	_, err = e.Apply(context.Background(), nil, 200000, "GONE")
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "usage limit reached", inv.Reason)
}

func TestApplyBoundaries(t *testing.T) {
	p := Promotion{Code: "EDGE", Type: TypeFixedAmount, Value: 100, StartAt: now, EndAt: now, MinSubtotalCents: 500}
	e := newEngine(p)
	res, err := e.Apply(context.Background(), nil, 500, "EDGE")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.DiscountCents)
}

func TestApplyComputation(t *testing.T) {
	cases := []struct {
		name     string
		promo    Promotion
		lines    []Line
		subtotal int64
		want     int64
		freeShip bool
	}{
		{
			name:     "percent capped",
			promo:    Promotion{Code: "P", Type: TypePercent, Value: 50, MaxDiscountCents: 10000},
			subtotal: 100000,
			want:     10000,
		},
		{
			name:     "percent floors fractional cents",
			promo:    Promotion{Code: "P", Type: TypePercent, Value: 15},
			subtotal: 999,
			want:     149,
		},
		{
			name:     "fixed bounded by subtotal",
			promo:    Promotion{Code: "F", Type: TypeFixedAmount, Value: 5000},
			subtotal: 3000,
			want:     3000,
		},
		{
			name:     "fixed",
			promo:    Promotion{Code: "F", Type: TypeFixedAmount, Value: 5000},
			subtotal: 30000,
			want:     5000,
		},
		{
			name:     "free shipping discounts nothing on subtotal",
			promo:    Promotion{Code: "S", Type: TypeFreeShipping},
			subtotal: 30000,
			want:     0,
			freeShip: true,
		},
		{
			name:  "buy 2 get 1, cheapest of each block free",
			promo: Promotion{Code: "B", Type: TypeBuyXGetY, BuyQty: 2, GetQty: 1},
			lines: []Line{
				{ProductID: "cable", UnitPriceCents: 1000, Quantity: 4},
				{ProductID: "dac", UnitPriceCents: 9000, Quantity: 2},
			},
			// units desc: 9000 9000 1000 | 1000 1000 1000 -> free 1000 + 1000
			subtotal: 22000,
			want:     2000,
		},
		{
			name:     "buy 2 get 1, incomplete block gets nothing",
			promo:    Promotion{Code: "B", Type: TypeBuyXGetY, BuyQty: 2, GetQty: 1},
			lines:    []Line{{ProductID: "cable", UnitPriceCents: 1000, Quantity: 2}},
			subtotal: 2000,
			want:     0,
		},
		{
			name:  "buy 1 get 1 restricted to category",
			promo: Promotion{Code: "B", Type: TypeBuyXGetY, BuyQty: 1, GetQty: 1, CategoryIDs: []string{"cables"}},
			lines: []Line{
				{ProductID: "xlr", CategoryID: "cables", UnitPriceCents: 3000, Quantity: 1},
				{ProductID: "rca", CategoryID: "cables", UnitPriceCents: 2000, Quantity: 1},
				{ProductID: "amp", CategoryID: "amps", UnitPriceCents: 50000, Quantity: 1},
			},
			subtotal: 55000,
			want:     2000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(window(tc.promo))
			res, err := e.Apply(context.Background(), tc.lines, tc.subtotal, tc.promo.Code)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.DiscountCents)
			assert.Equal(t, tc.freeShip, res.FreeShipping)
		})
	}
}

func TestApplyMisconfigured(t *testing.T) {
	e := newEngine(
		window(Promotion{Code: "P0", Type: TypePercent, Value: 0}),
		window(Promotion{Code: "BXG", Type: TypeBuyXGetY, BuyQty: 2}),
		window(Promotion{Code: "WAT", Type: "MYSTERY"}),
	)
	for _, code := range []string{"P0", "BXG", "WAT"} {
		_, err := e.Apply(context.Background(), nil, 1000, code)
		var inv *InvalidError
		assert.True(t, errors.As(err, &inv), code)
	}
}

func TestApplyStoreError(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(failingStore{boom})
	_, err := e.Apply(context.Background(), nil, 1000, "X")
	require.ErrorIs(t, err, boom)
}

type failingStore struct{ err error }

func (f failingStore) GetPromotion(context.Context, string) (Promotion, error) {
	return Promotion{}, f.err
}
