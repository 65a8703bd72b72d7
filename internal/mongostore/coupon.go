package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/order-desk/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

type couponDoc struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty"`
	Code               string               `bson:"code"`
	DiscountPercentage primitive.Decimal128 `bson:"discountPercentage"`
	IsUsed             bool                 `bson:"isUsed"`
	UsedBy             string               `bson:"usedBy,omitempty"`
	UsedAt             *time.Time           `bson:"usedAt,omitempty"`
}

// CouponRepository implements coupon.Repository on the coupons collection.
type CouponRepository struct {
	coll *mongo.Collection
}

// NewCouponRepository returns a CouponRepository on db.
func NewCouponRepository(db *mongo.Database) *CouponRepository {
	return &CouponRepository{coll: db.Collection(CouponsCollection)}
}

// FindUnused returns the first unused coupon with the exact code.
func (r *CouponRepository) FindUnused(ctx context.Context, code string) (*coupon.Coupon, error) {
	var doc couponDoc
	err := r.coll.FindOne(ctx, bson.M{"code": code, "isUsed": false}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, coupon.ErrInvalidOrUsed
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := fromCouponDoc(doc)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkUsed sets the used fields only on a document that is still unused.
func (r *CouponRepository) MarkUsed(ctx context.Context, code, agentID string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"code": code, "isUsed": false},
		bson.M{"$set": bson.M{"isUsed": true, "usedBy": agentID, "usedAt": at.UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("marking coupon %q used: %w", code, err)
	}
	return res.ModifiedCount == 1, nil
}

// Exists reports whether any coupon has the code.
func (r *CouponRepository) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"code": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking coupon %q: %w", code, err)
	}
	return n > 0, nil
}

// ListUsed returns redeemed coupons, most recent first.
func (r *CouponRepository) ListUsed(ctx context.Context) ([]coupon.Coupon, error) {
	cur, err := r.coll.Find(ctx, bson.M{"isUsed": true}, options.Find().SetSort(bson.D{{Key: "usedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing used coupons: %w", err)
	}

	var docs []couponDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding coupons: %w", err)
	}

	coupons := make([]coupon.Coupon, 0, len(docs))
	for _, doc := range docs {
		c, err := fromCouponDoc(doc)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

// Insert adds an unused coupon unless the code already exists.
func (r *CouponRepository) Insert(ctx context.Context, code string, pct decimal.Decimal) (bool, error) {
	v, err := toDecimal128(pct)
	if err != nil {
		return false, err
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"code": code},
		bson.M{"$setOnInsert": bson.M{"code": code, "discountPercentage": v, "isUsed": false}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("inserting coupon %q: %w", code, err)
	}
	return res.UpsertedCount == 1, nil
}

func fromCouponDoc(doc couponDoc) (coupon.Coupon, error) {
	pct, err := fromDecimal128(doc.DiscountPercentage)
	if err != nil {
		return coupon.Coupon{}, err
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Coupon{}, fmt.Errorf("coupon %q: %w", doc.Code, coupon.ErrInvalidPercentage)
	}
	return coupon.Coupon{
		ID:                 doc.ID.Hex(),
		Code:               doc.Code,
		DiscountPercentage: pct,
		IsUsed:             doc.IsUsed,
		UsedBy:             doc.UsedBy,
		UsedAt:             doc.UsedAt,
	}, nil
}
