package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentbuy/internal/transaction"
)

const (
	buyColumns  = `id, product_id, buyer_id, seller_id, price::text, status, created_at, updated_at`
	rentColumns = `id, product_id, renter_user_id, owner_user_id, start_date, end_date, rental_price::text, status, created_at, updated_at`
)

// Store is a transaction.Storage backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a Store on an open pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

func (s *Store) CreateBuy(ctx context.Context, b *transaction.Buy) error {
	if b.ID == "" {
		return transaction.ErrEmptyID
	}
	const q = `
		INSERT INTO buys (id, product_id, buyer_id, seller_id, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		b.ID, b.ProductID, b.BuyerID, b.SellerID, b.Price.String(), string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error executing insert buy query: %w", err)
	}
	return nil
}

func (s *Store) GetBuy(ctx context.Context, id string) (*transaction.Buy, error) {
	q := `SELECT ` + buyColumns + ` FROM buys WHERE id = $1`
	b, err := scanBuy(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transaction.ErrBuyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning buy row: %w", err)
	}
	return b, nil
}

func (s *Store) SetBuyStatus(ctx context.Context, id string, status transaction.BuyStatus, at time.Time) (*transaction.Buy, error) {
	q := `
		UPDATE buys
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + buyColumns
	b, err := scanBuy(s.pool.QueryRow(ctx, q, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transaction.ErrBuyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error updating buy status: %w", err)
	}
	return b, nil
}

func (s *Store) ListBuys(ctx context.Context, f transaction.BuyFilter) ([]*transaction.Buy, error) {
	var w where
	w.eq("buyer_id", f.BuyerID)
	w.eq("seller_id", f.SellerID)
	w.either("buyer_id", "seller_id", f.PartyID)
	w.eq("status", string(f.Status))

	q := `SELECT ` + buyColumns + ` FROM buys` + w.sql() + ` ORDER BY created_at DESC, seq DESC`
	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying buys: %w", err)
	}
	defer rows.Close()

	var out []*transaction.Buy
	for rows.Next() {
		b, err := scanBuy(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning buy row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating over buy rows: %w", err)
	}
	return out, nil
}

// CreateRent serializes rent creation per product with a transaction-scoped
// advisory lock, checks for blocking overlaps and inserts. The rents_no_overlap
// exclusion constraint rejects anything that slips past the lock.
func (s *Store) CreateRent(ctx context.Context, r *transaction.Rent) error {
	if r.ID == "" {
		return transaction.ErrEmptyID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, r.ProductID); err != nil {
		return fmt.Errorf("failed to lock product: %w", err)
	}

	const overlapQ = `
		SELECT EXISTS (
			SELECT 1
			FROM rents
			WHERE product_id = $1
			AND status IN ('PENDING', 'ACTIVE')
			AND start_date < $3
			AND end_date > $2
		)`
	var taken bool
	if err := tx.QueryRow(ctx, overlapQ, r.ProductID, r.StartDate, r.EndDate).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check overlapping rents: %w", err)
	}
	if taken {
		return transaction.ErrAlreadyRented
	}

	const insertQ = `
		INSERT INTO rents (id, product_id, renter_user_id, owner_user_id, start_date, end_date, rental_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)`
	_, err = tx.Exec(ctx, insertQ,
		r.ID, r.ProductID, r.RenterUserID, r.OwnerUserID, r.StartDate, r.EndDate,
		r.RentalPrice.String(), string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
			s.logger.Warn("overlap rejected by constraint", zap.String("product_id", r.ProductID))
			return transaction.ErrAlreadyRented
		}
		return fmt.Errorf("error executing insert rent query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetRent(ctx context.Context, id string) (*transaction.Rent, error) {
	q := `SELECT ` + rentColumns + ` FROM rents WHERE id = $1`
	r, err := scanRent(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transaction.ErrRentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning rent row: %w", err)
	}
	return r, nil
}

func (s *Store) SetRentStatus(ctx context.Context, id string, status transaction.RentStatus, at time.Time) (*transaction.Rent, error) {
	q := `
		UPDATE rents
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + rentColumns
	r, err := scanRent(s.pool.QueryRow(ctx, q, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transaction.ErrRentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error updating rent status: %w", err)
	}
	return r, nil
}

func (s *Store) ListRents(ctx context.Context, f transaction.RentFilter) ([]*transaction.Rent, error) {
	var w where
	w.eq("renter_user_id", f.RenterID)
	w.eq("owner_user_id", f.OwnerID)
	w.either("renter_user_id", "owner_user_id", f.PartyID)
	w.eq("status", string(f.Status))

	q := `SELECT ` + rentColumns + ` FROM rents` + w.sql() + ` ORDER BY created_at DESC, seq DESC`
	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying rents: %w", err)
	}
	defer rows.Close()

	var out []*transaction.Rent
	for rows.Next() {
		r, err := scanRent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning rent row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating over rent rows: %w", err)
	}
	return out, nil
}

func (s *Store) HasOpenTransactions(ctx context.Context, productID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM buys WHERE product_id = $1 AND status IN ('PENDING', 'COMPLETED')
		) OR EXISTS (
			SELECT 1 FROM rents WHERE product_id = $1 AND status IN ('PENDING', 'ACTIVE')
		)`
	var open bool
	if err := s.pool.QueryRow(ctx, q, productID).Scan(&open); err != nil {
		return false, fmt.Errorf("error checking open transactions: %w", err)
	}
	return open, nil
}

func scanBuy(row pgx.Row) (*transaction.Buy, error) {
	var (
		b      transaction.Buy
		price  string
		status string
	)
	if err := row.Scan(&b.ID, &b.ProductID, &b.BuyerID, &b.SellerID, &price, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	b.Price = p
	b.Status = transaction.BuyStatus(status)
	return &b, nil
}

func scanRent(row pgx.Row) (*transaction.Rent, error) {
	var (
		r      transaction.Rent
		price  string
		status string
	)
	if err := row.Scan(&r.ID, &r.ProductID, &r.RenterUserID, &r.OwnerUserID, &r.StartDate, &r.EndDate,
		&price, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid rental price %q: %w", price, err)
	}
	r.RentalPrice = p
	r.Status = transaction.RentStatus(status)
	return &r, nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *where) either(a, b, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	n := len(w.args)
	w.conds = append(w.conds, fmt.Sprintf("(%s = $%d OR %s = $%d)", a, n, b, n))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
