package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-desk/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, agent_id, name, role
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, agent_id, name, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, agent_id = EXCLUDED.agent_id,
			name = EXCLUDED.name, role = EXCLUDED.role, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
// Returns auth.ErrUnknownKey when there is none.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.Credential, error) {
	var (
		cred auth.Credential
		role string
	)
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&cred.ID, &cred.KeyHash, &cred.Agent.ID, &cred.Agent.Name, &role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	cred.Agent.Role = auth.ParseRole(role)
	return &cred, nil
}

// Upsert stores a credential, reactivating it if it was disabled.
func (r *APIKeyRepository) Upsert(ctx context.Context, cred auth.Credential) error {
	_, err := r.pool.Exec(ctx, upsertAPIKeySQL,
		cred.ID, cred.KeyHash, cred.Agent.ID, cred.Agent.Name, string(cred.Agent.Role),
	)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", cred.ID, err)
	}
	return nil
}
