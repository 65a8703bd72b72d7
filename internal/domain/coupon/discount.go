package coupon

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Apply computes the discount of c on subtotal. A nil coupon yields no
// discount. The amount is rounded to 2 decimal places and the total never
// drops below zero.
func Apply(subtotal decimal.Decimal, c *Coupon) (Discount, error) {
	subtotal = subtotal.Round(2)
	if c == nil {
		return Discount{Subtotal: subtotal, Amount: zero, Total: floorAtZero(subtotal)}, nil
	}
	if c.DiscountPercentage.IsNegative() || c.DiscountPercentage.GreaterThan(hundred) {
		return Discount{}, ErrInvalidPercentage
	}

	amount := subtotal.Mul(c.DiscountPercentage).Div(hundred).Round(2)
	total := floorAtZero(subtotal.Sub(amount)).Round(2)

	return Discount{
		Subtotal: subtotal,
		Amount:   amount,
		Total:    total,
	}, nil
}

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
