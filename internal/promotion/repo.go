package promotion

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

func (r *Repo) GetPromotion(ctx context.Context, code string) (Promotion, error) {
	var p Promotion
	var typ string
	err := r.DB.QueryRow(ctx, `
		SELECT code, type, value, max_discount_cents, buy_qty, get_qty,
		       product_ids, category_ids, min_subtotal_cents, start_at, end_at,
		       usage_limit, redemption_count
		FROM promotions WHERE code=$1`, code,
	).Scan(&p.Code, &typ, &p.Value, &p.MaxDiscountCents, &p.BuyQty, &p.GetQty,
		&p.ProductIDs, &p.CategoryIDs, &p.MinSubtotalCents, &p.StartAt, &p.EndAt,
		&p.UsageLimit, &p.RedemptionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Promotion{}, ErrNotFound
	}
	if err != nil {
		return Promotion{}, fmt.Errorf("get promotion %s: %w", code, err)
	}
	p.Type = Type(typ)
	return p, nil
}

// Redeem counts one use of code by orderID. Idempotent per (code, order):
// redelivered events return counted=false.
func (r *Repo) Redeem(ctx context.Context, code, orderID string) (counted bool, err error) {
	err = postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO promotion_redemptions(promotion_code, order_id)
			VALUES ($1, $2)
			ON CONFLICT (promotion_code, order_id) DO NOTHING`, code, orderID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE promotions SET redemption_count = redemption_count + 1 WHERE code=$1`, code); err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redeem %s for order %s: %w", code, orderID, err)
	}
	return counted, nil
}
