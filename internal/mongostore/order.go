package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/order-desk/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

type orderDoc struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty"`
	CustomerName    string               `bson:"customerName"`
	CustomerAddress string               `bson:"customerAddress"`
	CustomerMobile1 string               `bson:"customerMobile1"`
	CustomerMobile2 string               `bson:"customerMobile2,omitempty"`
	Products        []itemDoc            `bson:"products"`
	Subtotal        primitive.Decimal128 `bson:"subtotal"`
	DiscountAmount  primitive.Decimal128 `bson:"discountAmount"`
	TotalAmount     primitive.Decimal128 `bson:"totalAmount"`
	Date            time.Time            `bson:"date"`
	AgentID         string               `bson:"agentId"`
	CouponCode      string               `bson:"couponCode,omitempty"`
}

type itemDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int    `bson:"quantity"`
}

// OrderRepository implements order.Repository on the orders collection.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(OrdersCollection)}
}

// Insert stores o as a new document and returns its ObjectID in hex.
func (r *OrderRepository) Insert(ctx context.Context, o order.Order) (string, error) {
	doc, err := toOrderDoc(o)
	if err != nil {
		return "", err
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("inserting order: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return id.Hex(), nil
}

// List returns all orders, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}

	orders := make([]order.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := fromOrderDoc(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func toOrderDoc(o order.Order) (orderDoc, error) {
	doc := orderDoc{
		CustomerName:    o.CustomerName,
		CustomerAddress: o.CustomerAddress,
		CustomerMobile1: o.CustomerMobile1,
		CustomerMobile2: o.CustomerMobile2,
		Products:        make([]itemDoc, 0, len(o.Items)),
		Date:            o.Date.UTC(),
		AgentID:         o.AgentID,
		CouponCode:      o.CouponCode,
	}
	for _, item := range o.Items {
		doc.Products = append(doc.Products, itemDoc{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	var err error
	if doc.Subtotal, err = toDecimal128(o.Subtotal); err != nil {
		return doc, err
	}
	if doc.DiscountAmount, err = toDecimal128(o.DiscountAmount); err != nil {
		return doc, err
	}
	if doc.TotalAmount, err = toDecimal128(o.TotalAmount); err != nil {
		return doc, err
	}
	return doc, nil
}

func fromOrderDoc(doc orderDoc) (order.Order, error) {
	o := order.Order{
		ID:              doc.ID.Hex(),
		CustomerName:    doc.CustomerName,
		CustomerAddress: doc.CustomerAddress,
		CustomerMobile1: doc.CustomerMobile1,
		CustomerMobile2: doc.CustomerMobile2,
		Items:           make([]order.Item, 0, len(doc.Products)),
		Date:            doc.Date.UTC(),
		AgentID:         doc.AgentID,
		CouponCode:      doc.CouponCode,
	}
	for _, item := range doc.Products {
		if item.Quantity <= 0 {
			return o, fmt.Errorf("order %s: invalid quantity %d for product %s", o.ID, item.Quantity, item.ProductID)
		}
		o.Items = append(o.Items, order.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	var err error
	if o.Subtotal, err = fromDecimal128(doc.Subtotal); err != nil {
		return o, err
	}
	if o.DiscountAmount, err = fromDecimal128(doc.DiscountAmount); err != nil {
		return o, err
	}
	if o.TotalAmount, err = fromDecimal128(doc.TotalAmount); err != nil {
		return o, err
	}
	return o, nil
}
