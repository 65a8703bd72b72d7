package mongostore

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/order-desk/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

type apiKeyDoc struct {
	ID      string `bson:"_id"`
	KeyHash string `bson:"keyHash"`
	AgentID string `bson:"agentId"`
	Name    string `bson:"name"`
	Role    string `bson:"role"`
	Active  bool   `bson:"active"`
}

// APIKeyRepository implements auth.Repository on the apiKeys collection.
type APIKeyRepository struct {
	coll *mongo.Collection
}

// NewAPIKeyRepository returns an APIKeyRepository on db.
func NewAPIKeyRepository(db *mongo.Database) *APIKeyRepository {
	return &APIKeyRepository{coll: db.Collection(APIKeysCollection)}
}

// FindByHash looks up an active key by its HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.Credential, error) {
	var doc apiKeyDoc
	err := r.coll.FindOne(ctx, bson.M{"keyHash": hash, "active": true}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &auth.Credential{
		ID:      doc.ID,
		KeyHash: doc.KeyHash,
		Agent: auth.Agent{
			ID:   doc.AgentID,
			Name: doc.Name,
			Role: auth.ParseRole(doc.Role),
		},
	}, nil
}
