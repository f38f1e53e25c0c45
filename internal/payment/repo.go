package payment

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

// the partial unique index: at most one non-expired intent per (order, key)
const liveIntentIndex = "uq_payment_intents_live"

const intentColumns = `id, order_id, provider, idempotency_key, status, amount_cents,
	provider_ref, redirect_url, created_at, updated_at`

func scanIntent(row pgx.Row) (Intent, error) {
	var (
		in     Intent
		status string
	)
	err := row.Scan(&in.ID, &in.OrderID, &in.Provider, &in.IdempotencyKey, &status, &in.AmountCents,
		&in.ProviderRef, &in.RedirectURL, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Intent{}, errNotFound
	}
	if err != nil {
		return Intent{}, err
	}
	in.Status = Status(status)
	return in, nil
}

// FindLive returns the non-expired intent for (orderID, key), if any.
func (r *Repo) FindLive(ctx context.Context, orderID, key string) (Intent, bool, error) {
	in, err := scanIntent(r.DB.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE order_id=$1 AND idempotency_key=$2 AND status <> 'EXPIRED'`, orderID, key))
	if errors.Is(err, errNotFound) {
		return Intent{}, false, nil
	}
	if err != nil {
		return Intent{}, false, fmt.Errorf("find intent %s/%s: %w", orderID, key, err)
	}
	return in, true, nil
}

// Claim inserts in unless a live intent for the same key exists. won is
// false when another request got there first.
func (r *Repo) Claim(ctx context.Context, in Intent) (won bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payment_intents(id, order_id, provider, idempotency_key, status, amount_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (order_id, idempotency_key) WHERE status <> 'EXPIRED' DO NOTHING`,
		in.ID, in.OrderID, in.Provider, in.IdempotencyKey, string(in.Status), in.AmountCents, in.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("claim intent %s: %w", in.OrderID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Attach(ctx context.Context, id string, s CheckoutSession) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payment_intents SET provider_ref=$2, redirect_url=$3, updated_at=now()
		WHERE id=$1`, id, s.ProviderRef, s.RedirectURL)
	if err != nil {
		return fmt.Errorf("attach session to %s: %w", id, err)
	}
	return nil
}

func (r *Repo) Expire(ctx context.Context, id string) error {
	_, err := r.Advance(ctx, id, StatusExpired)
	return err
}

func (r *Repo) ByProviderRef(ctx context.Context, provider, ref string) (Intent, error) {
	in, err := scanIntent(r.DB.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE provider=$1 AND provider_ref=$2
		ORDER BY created_at DESC
		LIMIT 1`, provider, ref))
	if errors.Is(err, errNotFound) {
		return Intent{}, ErrUnknownIntent
	}
	if err != nil {
		return Intent{}, fmt.Errorf("intent by ref %s: %w", ref, err)
	}
	return in, nil
}

// Advance moves an intent to status `to` only from an allowed earlier status.
// A success for an intent that was already expired locally revives it, and
// any live replacement claimed under the same key is expired in the same
// transaction. If the replacement already succeeded the old intent stays
// expired and moved is false.
func (r *Repo) Advance(ctx context.Context, id string, to Status) (bool, error) {
	if to != StatusSucceeded {
		return advance(ctx, r.DB, id, to)
	}
	var moved bool
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payment_intents s SET status='EXPIRED', updated_at=now()
			FROM payment_intents t
			WHERE t.id=$1 AND t.status='EXPIRED'
			  AND s.order_id=t.order_id AND s.idempotency_key=t.idempotency_key
			  AND s.id<>t.id AND s.status = ANY($2)`,
			id, []string{string(StatusCreated), string(StatusPending), string(StatusFailed)})
		if err != nil {
			return fmt.Errorf("expire replacements of %s: %w", id, err)
		}
		moved, err = advance(ctx, tx, id, to)
		return err
	})
	if postgres.IsUniqueViolation(err, liveIntentIndex) {
		return false, nil
	}
	return moved, err
}

func advance(ctx context.Context, q postgres.Querier, id string, to Status) (bool, error) {
	from := advanceFrom(to)
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	ct, err := q.Exec(ctx, `
		UPDATE payment_intents SET status=$2, updated_at=now()
		WHERE id=$1 AND status = ANY($3)`, id, string(to), allowed)
	if err != nil {
		return false, fmt.Errorf("advance intent %s to %s: %w", id, to, err)
	}
	return ct.RowsAffected() == 1, nil
}
