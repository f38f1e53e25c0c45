// Package catalog is the read-only product lookup used by checkout.
// Products are owned by the storefront admin; this service never writes them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID         string
	SKU        string
	Name       string
	PriceCents int64
	Active     bool
	CategoryID string
}

type Repo struct{ DB postgres.Querier }

func (r *Repo) GetProduct(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, price_cents, active, category_id
		FROM products WHERE id=$1`, productID,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Active, &p.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}
