package mongostore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
)

func TestOrderDoc_RoundTrip(t *testing.T) {
	o := order.Order{
		CustomerName:    "alice",
		CustomerAddress: "1 Main St",
		CustomerMobile1: "0400000000",
		Items:           []order.Item{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		Subtotal:        decimal.RequireFromString("112.25"),
		DiscountAmount:  decimal.RequireFromString("22.45"),
		TotalAmount:     decimal.RequireFromString("89.80"),
		Date:            time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		AgentID:         "agent-1",
		CouponCode:      "SAVE20",
	}

	doc, err := toOrderDoc(o)
	require.NoError(t, err)
	assert.True(t, doc.ID.IsZero(), "the store assigns the id")

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded orderDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	decoded.ID = primitive.NewObjectID()

	got, err := fromOrderDoc(decoded)
	require.NoError(t, err)
	assert.Equal(t, decoded.ID.Hex(), got.ID)
	assert.Equal(t, o.Items, got.Items)
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount), "expected total %s, got %s", o.TotalAmount, got.TotalAmount)
	assert.True(t, o.DiscountAmount.Equal(got.DiscountAmount))
	assert.True(t, o.Date.Equal(got.Date))
	assert.Equal(t, "SAVE20", got.CouponCode)
}

func TestFromOrderDoc_RejectsBadQuantity(t *testing.T) {
	_, err := fromOrderDoc(orderDoc{
		ID:       primitive.NewObjectID(),
		Products: []itemDoc{{ProductID: "p1", Quantity: 0}},
	})
	require.Error(t, err)
}

func TestFromCouponDoc(t *testing.T) {
	pct, err := primitive.ParseDecimal128("20")
	require.NoError(t, err)

	c, err := fromCouponDoc(couponDoc{ID: primitive.NewObjectID(), Code: "SAVE20", DiscountPercentage: pct})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(c.DiscountPercentage))
	assert.False(t, c.IsUsed)

	bad, err := primitive.ParseDecimal128("120")
	require.NoError(t, err)
	_, err = fromCouponDoc(couponDoc{Code: "BAD", DiscountPercentage: bad})
	require.ErrorIs(t, err, coupon.ErrInvalidPercentage)
}
