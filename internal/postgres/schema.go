package postgres

import (
	"context"
	"fmt"
)

// Schema is applied on startup when MIGRATE_ON_START=true. Everything is
// IF NOT EXISTS so it is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
    id           TEXT PRIMARY KEY,
    sku          TEXT NOT NULL UNIQUE,
    name         TEXT NOT NULL,
    price_cents  BIGINT NOT NULL CHECK (price_cents >= 0),
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    category_id  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inventory (
    product_id  TEXT PRIMARY KEY REFERENCES products(id),
    stock       INTEGER NOT NULL,
    reserved    INTEGER NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT inventory_bounds CHECK (reserved >= 0 AND reserved <= stock)
);

CREATE TABLE IF NOT EXISTS reservation_lines (
    reservation_id  TEXT NOT NULL,
    order_id        TEXT NOT NULL,
    product_id      TEXT NOT NULL REFERENCES inventory(product_id),
    qty             INTEGER NOT NULL CHECK (qty > 0),
    status          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (reservation_id, product_id)
);
CREATE INDEX IF NOT EXISTS idx_reservation_lines_order ON reservation_lines(order_id);

CREATE TABLE IF NOT EXISTS orders (
    id                TEXT PRIMARY KEY,
    order_no          TEXT NOT NULL,
    user_id           TEXT NOT NULL,
    status            TEXT NOT NULL,
    subtotal_cents    BIGINT NOT NULL,
    shipping_cents    BIGINT NOT NULL,
    discount_cents    BIGINT NOT NULL,
    total_cents       BIGINT NOT NULL,
    shipping_address  JSONB NOT NULL,
    promotion_code    TEXT,
    reservation_id    TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT orders_order_no_key UNIQUE (order_no)
);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at);

CREATE TABLE IF NOT EXISTS order_items (
    id                TEXT PRIMARY KEY,
    order_id          TEXT NOT NULL REFERENCES orders(id),
    product_id        TEXT NOT NULL,
    name              TEXT NOT NULL,
    unit_price_cents  BIGINT NOT NULL,
    qty               INTEGER NOT NULL CHECK (qty > 0),
    line_total_cents  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS payment_intents (
    id               TEXT PRIMARY KEY,
    order_id         TEXT NOT NULL REFERENCES orders(id),
    provider         TEXT NOT NULL,
    idempotency_key  TEXT NOT NULL,
    status           TEXT NOT NULL,
    amount_cents     BIGINT NOT NULL,
    provider_ref     TEXT NOT NULL DEFAULT '',
    redirect_url     TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_intents_live
    ON payment_intents(order_id, idempotency_key) WHERE status <> 'EXPIRED';
CREATE INDEX IF NOT EXISTS idx_payment_intents_ref ON payment_intents(provider, provider_ref);

CREATE TABLE IF NOT EXISTS promotions (
    code                TEXT PRIMARY KEY,
    type                TEXT NOT NULL,
    value               BIGINT NOT NULL DEFAULT 0,
    max_discount_cents  BIGINT NOT NULL DEFAULT 0,
    buy_qty             INTEGER NOT NULL DEFAULT 0,
    get_qty             INTEGER NOT NULL DEFAULT 0,
    product_ids         TEXT[] NOT NULL DEFAULT '{}',
    category_ids        TEXT[] NOT NULL DEFAULT '{}',
    min_subtotal_cents  BIGINT NOT NULL DEFAULT 0,
    start_at            TIMESTAMPTZ NOT NULL,
    end_at              TIMESTAMPTZ NOT NULL,
    usage_limit         INTEGER NOT NULL DEFAULT 0,
    redemption_count    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS promotion_redemptions (
    promotion_code  TEXT NOT NULL REFERENCES promotions(code),
    order_id        TEXT NOT NULL,
    redeemed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (promotion_code, order_id)
);
`

func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
