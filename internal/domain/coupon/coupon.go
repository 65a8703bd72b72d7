package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCode is returned when a blank coupon code is validated or redeemed.
	ErrEmptyCode = errors.New("coupon code is empty")
	// ErrInvalidOrUsed is returned when no unused coupon matches the code.
	// Unknown and already used codes are deliberately indistinguishable.
	ErrInvalidOrUsed = errors.New("invalid or already used coupon")
	// ErrAlreadyRedeemed is returned by a redemption that lost the race for a
	// coupon someone else flipped to used first.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed")
	// ErrInvalidPercentage is returned when a coupon carries a discount outside 0..100.
	ErrInvalidPercentage = errors.New("discount percentage out of range")
)

// Coupon is a single-use percentage discount.
type Coupon struct {
	ID                 string
	Code               string
	DiscountPercentage decimal.Decimal
	IsUsed             bool
	UsedBy             string
	UsedAt             *time.Time
}

// Discount holds the computed totals for a subtotal with a coupon applied.
type Discount struct {
	Subtotal decimal.Decimal
	Amount   decimal.Decimal
	Total    decimal.Decimal
}

// Item represents a priced line item for subtotal calculation.
type Item struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Repository provides lookup and redemption of coupons in the remote store.
type Repository interface {
	// FindUnused returns the first coupon whose code matches exactly and whose
	// isUsed flag is false. Returns ErrInvalidOrUsed when there is none.
	FindUnused(ctx context.Context, code string) (*Coupon, error)
	// MarkUsed sets isUsed, usedBy and usedAt on the coupon with the given code
	// only if it is still unused. It reports whether a coupon was updated.
	MarkUsed(ctx context.Context, code, agentID string, at time.Time) (bool, error)
	// Exists reports whether any coupon with the given code exists.
	Exists(ctx context.Context, code string) (bool, error)
	// ListUsed returns all redeemed coupons.
	ListUsed(ctx context.Context) ([]Coupon, error)
}
