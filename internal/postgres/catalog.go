package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rentbuy/internal/transaction"
)

// Catalog reads product ownership, titles and prices from the products table.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) FindProduct(ctx context.Context, productID string) (*transaction.Product, error) {
	const q = `
		SELECT id, owner_id, title, COALESCE(rent_unit, ''), purchase_price::text, rental_price::text
		FROM products
		WHERE id = $1`
	var (
		p                     transaction.Product
		purchase, rentalPrice *string
	)
	err := c.pool.QueryRow(ctx, q, productID).
		Scan(&p.ID, &p.OwnerID, &p.Title, &p.RentUnit, &purchase, &rentalPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transaction.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning product row: %w", err)
	}

	if p.PurchasePrice, err = optionalDecimal(purchase); err != nil {
		return nil, fmt.Errorf("invalid purchase price for product %s: %w", productID, err)
	}
	if p.RentalPrice, err = optionalDecimal(rentalPrice); err != nil {
		return nil, fmt.Errorf("invalid rental price for product %s: %w", productID, err)
	}
	return &p, nil
}

// Upsert inserts products or replaces the ones already present, in one transaction.
func (c *Catalog) Upsert(ctx context.Context, products []transaction.Product) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO products (id, owner_id, title, rent_unit, purchase_price, rental_price)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::numeric, $6::numeric)
		ON CONFLICT (id) DO UPDATE SET
			owner_id       = EXCLUDED.owner_id,
			title          = EXCLUDED.title,
			rent_unit      = EXCLUDED.rent_unit,
			purchase_price = EXCLUDED.purchase_price,
			rental_price   = EXCLUDED.rental_price,
			updated_at     = NOW()`
	for _, p := range products {
		if _, err := tx.Exec(ctx, q,
			p.ID, p.OwnerID, p.Title, p.RentUnit, decimalText(p.PurchasePrice), decimalText(p.RentalPrice)); err != nil {
			return fmt.Errorf("error upserting product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit products: %w", err)
	}
	return nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
