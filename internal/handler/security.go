package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/auth"
	"github.com/xenking/order-desk/pkg/httpmiddleware"
)

// APIKeyHeader carries the agent's API key. An "Authorization: Bearer" header
// is accepted as well.
const APIKeyHeader = "api_key"

// Security authenticates requests by the HMAC-SHA256 of their API key.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored.
func HashKey(pepper []byte, key string) string {
	return hex.EncodeToString(sum(pepper, key))
}

func sum(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Agent resolves the agent owning key.
func (s *Security) Agent(ctx context.Context, key string) (auth.Agent, error) {
	if key == "" {
		return auth.Agent{}, auth.ErrUnknownKey
	}

	hash := sum(s.pepper, key)
	cred, err := s.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return auth.Agent{}, err
	}

	stored, err := hex.DecodeString(cred.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return auth.Agent{}, auth.ErrUnknownKey
	}
	return cred.Agent, nil
}

// Authenticate rejects requests without a valid API key and stores the
// resolved agent in the request context.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, err := s.Agent(r.Context(), apiKey(r))
		if err != nil {
			if !errors.Is(err, auth.ErrUnknownKey) {
				zctx.From(r.Context()).Error("Resolve API key", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), agentKey{}, agent)
		ctx = zctx.With(ctx, zap.String("agent_id", agent.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only agents holding one of roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent, ok := AgentFromContext(r.Context())
			if !ok || !agent.Is(roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type agentKey struct{}

// AgentFromContext returns the agent resolved by Authenticate.
func AgentFromContext(ctx context.Context) (auth.Agent, bool) {
	agent, ok := ctx.Value(agentKey{}).(auth.Agent)
	return agent, ok
}

// AgentRateKey keys rate limiting by agent, falling back to the client IP
// for unauthenticated requests.
func AgentRateKey(r *http.Request) string {
	if agent, ok := AgentFromContext(r.Context()); ok {
		return "agent:" + agent.ID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

func apiKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
