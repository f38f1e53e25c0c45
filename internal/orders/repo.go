package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"time"
)

// Settler applies the stock side of a transition inside the order's transaction.
type Settler interface {
	CommitTx(ctx context.Context, q postgres.Querier, reservationID string) ([]inventory.Item, error)
	ReleaseTx(ctx context.Context, q postgres.Querier, reservationID string) ([]inventory.Item, error)
}

type Repo struct {
	DB      postgres.DB
	Settler Settler
}

const constraintOrderNo = "orders_order_no_key"

// Insert writes the order and its item snapshots in one transaction.
func (r *Repo) Insert(ctx context.Context, o Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	err = postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders(id, order_no, user_id, status, subtotal_cents, shipping_cents,
			                   discount_cents, total_cents, shipping_address, promotion_code,
			                   reservation_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$12)`,
			o.ID, o.OrderNo, o.UserID, string(o.Status), o.SubtotalCents, o.ShippingCents,
			o.DiscountCents, o.TotalCents, addr, o.PromotionCode, o.ReservationID, o.CreatedAt); err != nil {
			return err
		}
		for _, it := range o.Items {
			id := it.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(id, order_id, product_id, name, unit_price_cents, qty, line_total_cents)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				id, o.ID, it.ProductID, it.Name, it.UnitPriceCents, it.Qty, it.LineTotalCents); err != nil {
				return err
			}
		}
		return nil
	})
	if postgres.IsUniqueViolation(err, constraintOrderNo) {
		return ErrDuplicateOrderNo
	}
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	var (
		o      Order
		status string
		addr   []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_no, user_id, status, subtotal_cents, shipping_cents, discount_cents,
		       total_cents, shipping_address, COALESCE(promotion_code,''), reservation_id,
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.OrderNo, &o.UserID, &status, &o.SubtotalCents, &o.ShippingCents, &o.DiscountCents,
		&o.TotalCents, &addr, &o.PromotionCode, &o.ReservationID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	o.Status = Status(status)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return Order{}, fmt.Errorf("decode address of %s: %w", id, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, name, unit_price_cents, qty, line_total_cents
		FROM order_items WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("get items of %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		it := OrderItem{OrderID: id}
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.UnitPriceCents, &it.Qty, &it.LineTotalCents); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// Transition moves an order from one status to another only if it is still
// in from, and applies effect to its reservation in the same transaction.
// A lost race yields ErrStaleStatus and leaves stock untouched.
func (r *Repo) Transition(ctx context.Context, id string, from, to Status, effect Effect) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var reservationID string
		err := tx.QueryRow(ctx, `
			UPDATE orders SET status=$3, updated_at=now()
			WHERE id=$1 AND status=$2
			RETURNING reservation_id`, id, string(from), string(to)).Scan(&reservationID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleStatus
		}
		if err != nil {
			return fmt.Errorf("transition %s %s->%s: %w", id, from, to, err)
		}
		switch effect {
		case EffectCommit:
			_, err = r.Settler.CommitTx(ctx, tx, reservationID)
		case EffectRelease:
			_, err = r.Settler.ReleaseTx(ctx, tx, reservationID)
		}
		return err
	})
}

// ListStale returns ids of orders in status created before the cutoff, oldest first.
func (r *Repo) ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale %s: %w", status, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
