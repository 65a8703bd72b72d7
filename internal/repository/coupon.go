package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_percentage, is_used, used_by, used_at`

	findUnusedCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = $1 AND NOT is_used LIMIT 1`

	// The is_used predicate makes the update a compare-and-swap: of any
	// number of concurrent redemptions exactly one matches a row.
	markCouponUsedSQL = `UPDATE coupons SET is_used = TRUE, used_by = $2, used_at = $3
		WHERE code = $1 AND NOT is_used`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`

	listUsedCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_used ORDER BY used_at DESC`

	insertCouponSQL = `INSERT INTO coupons (code, discount_percentage)
		VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindUnused looks up an unused coupon by exact code.
// Returns coupon.ErrInvalidOrUsed when none matches.
func (r *CouponRepository) FindUnused(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findUnusedCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidOrUsed
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// MarkUsed flips the coupon to used if it is not used yet.
func (r *CouponRepository) MarkUsed(ctx context.Context, code, agentID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, markCouponUsedSQL, code, agentID, at)
	if err != nil {
		return false, fmt.Errorf("marking coupon %q used: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether a coupon with the code exists, used or not.
func (r *CouponRepository) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking coupon %q: %w", code, err)
	}
	return exists, nil
}

// ListUsed returns redeemed coupons, most recent first.
func (r *CouponRepository) ListUsed(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listUsedCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing used coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Insert adds an unused coupon. Existing codes are left untouched so that
// re-importing never resets a redemption. It reports whether a row was added.
func (r *CouponRepository) Insert(ctx context.Context, code string, pct decimal.Decimal) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertCouponSQL, code, pct)
	if err != nil {
		return false, fmt.Errorf("inserting coupon %q: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c      coupon.Coupon
		usedBy *string
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountPercentage, &c.IsUsed, &usedBy, &c.UsedAt)
	if usedBy != nil {
		c.UsedBy = *usedBy
	}
	return c, err
}
