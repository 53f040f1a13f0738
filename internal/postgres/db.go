// Package postgres implements the transaction store and the product catalog
// lookup on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const connectAttempts = 5

// Open connects to the database, retrying while it comes up, and applies the schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	for i := 1; ; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		if i == connectAttempts {
			pool.Close()
			return nil, fmt.Errorf("could not reach database after %d attempts: %w", connectAttempts, err)
		}
		logger.Info("waiting for database", zap.Int("attempt", i), zap.Int("of", connectAttempts))
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	logger.Info("database connection established")

	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates extensions, tables and indexes idempotently.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS btree_gist`,
		`CREATE TABLE IF NOT EXISTS products (
			id             TEXT        PRIMARY KEY,
			owner_id       TEXT        NOT NULL,
			title          TEXT        NOT NULL DEFAULT '',
			purchase_price NUMERIC     CHECK (purchase_price >= 0),
			rental_price   NUMERIC     CHECK (rental_price >= 0),
			rent_unit      TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS buys (
			seq        BIGINT      GENERATED ALWAYS AS IDENTITY,
			id         TEXT        PRIMARY KEY,
			product_id TEXT        NOT NULL,
			buyer_id   TEXT        NOT NULL,
			seller_id  TEXT        NOT NULL,
			price      NUMERIC     NOT NULL,
			status     TEXT        NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'CANCELLED')),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK (buyer_id <> seller_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rents (
			seq            BIGINT      GENERATED ALWAYS AS IDENTITY,
			id             TEXT        PRIMARY KEY,
			product_id     TEXT        NOT NULL,
			renter_user_id TEXT        NOT NULL,
			owner_user_id  TEXT        NOT NULL,
			start_date     TIMESTAMPTZ NOT NULL,
			end_date       TIMESTAMPTZ NOT NULL,
			rental_price   NUMERIC     NOT NULL,
			status         TEXT        NOT NULL CHECK (status IN ('PENDING', 'ACTIVE', 'COMPLETED', 'CANCELLED')),
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			CHECK (start_date < end_date),
			CHECK (renter_user_id <> owner_user_id),
			CONSTRAINT rents_no_overlap EXCLUDE USING gist (
				product_id WITH =,
				tstzrange(start_date, end_date, '[)') WITH &&
			) WHERE (status IN ('PENDING', 'ACTIVE'))
		)`,
		// Price snapshots keep the catalog's scale; widen columns created by older schemas.
		`ALTER TABLE products ALTER COLUMN purchase_price TYPE NUMERIC, ALTER COLUMN rental_price TYPE NUMERIC`,
		`ALTER TABLE buys ALTER COLUMN price TYPE NUMERIC`,
		`ALTER TABLE rents ALTER COLUMN rental_price TYPE NUMERIC`,
		`CREATE INDEX IF NOT EXISTS idx_buys_buyer_id ON buys(buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_buys_seller_id ON buys(seller_id)`,
		`CREATE INDEX IF NOT EXISTS idx_buys_product_id ON buys(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rents_renter_user_id ON rents(renter_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rents_owner_user_id ON rents(owner_user_id)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	logger.Info("migrations completed")
	return nil
}
