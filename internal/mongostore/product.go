package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/order-desk/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type productDoc struct {
	ID    string               `bson:"_id"`
	Name  string               `bson:"name"`
	Price primitive.Decimal128 `bson:"price"`
}

// ProductRepository implements product.Repository on the products collection.
type ProductRepository struct {
	coll *mongo.Collection
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(ProductsCollection)}
}

// List returns all products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}

	products := make([]product.Product, 0, len(docs))
	for _, doc := range docs {
		price, err := fromDecimal128(doc.Price)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", doc.ID, err)
		}
		products = append(products, product.Product{ID: doc.ID, Name: doc.Name, Price: price})
	}
	return products, nil
}
