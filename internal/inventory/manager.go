package inventory

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"sort"
	"time"
)

// Manager holds, releases and commits stock. Every stock write is a single
// conditional UPDATE; there is no read-then-write window.
type Manager struct {
	DB  postgres.DB
	Log *zap.Logger
	Now func() time.Time
}

func NewManager(db postgres.DB, lg *zap.Logger) *Manager {
	return &Manager{DB: db, Log: lg, Now: time.Now}
}

var errBoundsViolated = errors.New("inventory bounds violated")

// Reserve holds every item or nothing. If one product cannot be held the
// whole batch is rolled back and *InsufficientStockError is returned.
func (m *Manager) Reserve(ctx context.Context, orderID string, items []Item) (Reservation, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return Reservation{}, err
	}

	res := Reservation{ID: uuid.NewString(), OrderID: orderID, Items: merged, CreatedAt: m.Now().UTC()}
	err = postgres.InTx(ctx, m.DB, func(tx pgx.Tx) error {
		for _, it := range merged {
			ct, err := tx.Exec(ctx, `
				UPDATE inventory SET reserved = reserved + $2, updated_at = now()
				WHERE product_id = $1 AND stock - reserved >= $2`,
				it.ProductID, it.Qty)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", it.ProductID, err)
			}
			if ct.RowsAffected() == 0 {
				return &InsufficientStockError{
					ProductID: it.ProductID,
					Requested: it.Qty,
					Available: available(ctx, tx, it.ProductID),
				}
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO reservation_lines(reservation_id, order_id, product_id, qty, status)
				VALUES ($1, $2, $3, $4, $5)`,
				res.ID, orderID, it.ProductID, it.Qty, string(LineHeld)); err != nil {
				return fmt.Errorf("record reservation line %s: %w", it.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	m.Log.Debug("stock reserved", zap.String("order_id", orderID), zap.String("reservation_id", res.ID), zap.Int("lines", len(merged)))
	return res, nil
}

func (m *Manager) Release(ctx context.Context, reservationID string) error {
	return postgres.InTx(ctx, m.DB, func(tx pgx.Tx) error {
		_, err := m.ReleaseTx(ctx, tx, reservationID)
		return err
	})
}

// ReleaseTx returns HELD lines to available stock. Lines already released or
// committed are skipped, so repeated calls change nothing.
func (m *Manager) ReleaseTx(ctx context.Context, q postgres.Querier, reservationID string) ([]Item, error) {
	items, err := flipLines(ctx, q, reservationID, LineReleased)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		ct, err := q.Exec(ctx, `
			UPDATE inventory SET reserved = reserved - $2, updated_at = now()
			WHERE product_id = $1 AND reserved >= $2`,
			it.ProductID, it.Qty)
		if err != nil {
			return nil, fmt.Errorf("release %s: %w", it.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			return nil, fmt.Errorf("release %s qty=%d: %w", it.ProductID, it.Qty, errBoundsViolated)
		}
	}
	if len(items) > 0 {
		m.Log.Info("reservation released", zap.String("reservation_id", reservationID), zap.Int("lines", len(items)))
	}
	return items, nil
}

func (m *Manager) Commit(ctx context.Context, reservationID string) error {
	return postgres.InTx(ctx, m.DB, func(tx pgx.Tx) error {
		_, err := m.CommitTx(ctx, tx, reservationID)
		return err
	})
}

// CommitTx turns HELD lines into permanent consumption: stock and reserved
// drop together. Repeated calls change nothing.
func (m *Manager) CommitTx(ctx context.Context, q postgres.Querier, reservationID string) ([]Item, error) {
	items, err := flipLines(ctx, q, reservationID, LineCommitted)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		ct, err := q.Exec(ctx, `
			UPDATE inventory SET stock = stock - $2, reserved = reserved - $2, updated_at = now()
			WHERE product_id = $1 AND reserved >= $2`,
			it.ProductID, it.Qty)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", it.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			return nil, fmt.Errorf("commit %s qty=%d: %w", it.ProductID, it.Qty, errBoundsViolated)
		}
	}
	if len(items) > 0 {
		m.Log.Info("reservation committed", zap.String("reservation_id", reservationID), zap.Int("lines", len(items)))
	}
	return items, nil
}

func (m *Manager) Level(ctx context.Context, productID string) (Level, error) {
	l := Level{ProductID: productID}
	err := m.DB.QueryRow(ctx, `SELECT stock, reserved FROM inventory WHERE product_id=$1`, productID).Scan(&l.Stock, &l.Reserved)
	if err != nil {
		return Level{}, fmt.Errorf("inventory level %s: %w", productID, err)
	}
	return l, nil
}

// OrphanHolds lists reservations still HELD since before the cutoff whose
// order row was never written (failed persist or a crash after Reserve).
func (m *Manager) OrphanHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := m.DB.Query(ctx, `
		SELECT DISTINCT l.reservation_id FROM reservation_lines l
		WHERE l.status = $1 AND l.created_at < $2
		  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.id = l.order_id)
		LIMIT $3`, string(LineHeld), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphan holds: %w", err)
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

// flipLines moves HELD lines of a reservation to status and returns them.
func flipLines(ctx context.Context, q postgres.Querier, reservationID string, status LineStatus) ([]Item, error) {
	rows, err := q.Query(ctx, `
		UPDATE reservation_lines SET status = $2, updated_at = now()
		WHERE reservation_id = $1 AND status = $3
		RETURNING product_id, qty`,
		reservationID, string(status), string(LineHeld))
	if err != nil {
		return nil, fmt.Errorf("mark reservation %s %s: %w", reservationID, status, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// urutkan supaya lock order sama dengan Reserve
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

// available is only used to enrich the error message; 0 if the row is missing.
func available(ctx context.Context, q postgres.Querier, productID string) int {
	var n int
	if err := q.QueryRow(ctx, `SELECT stock - reserved FROM inventory WHERE product_id=$1`, productID).Scan(&n); err != nil {
		return 0
	}
	return n
}

// mergeItems sums quantities per product and sorts by product id so that
// concurrent reservations lock inventory rows in the same order.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, &InvalidItemError{}
	}
	qty := make(map[string]int, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Qty <= 0 {
			return nil, &InvalidItemError{ProductID: it.ProductID, Qty: it.Qty}
		}
		qty[it.ProductID] += it.Qty
	}
	out := make([]Item, 0, len(qty))
	for id, q := range qty {
		out = append(out, Item{ProductID: id, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
