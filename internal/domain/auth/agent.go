package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrUnknownKey is returned when no active API key matches a hash.
var ErrUnknownKey = errors.New("unknown api key")

// Role is the permission level of an agent.
type Role string

const (
	RoleAgent   Role = "agent"
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
)

// ParseRole maps a stored role name to a Role. Unknown and empty names
// fall back to RoleAgent.
func ParseRole(s string) Role {
	switch r := Role(s); r {
	case RoleAdmin, RoleAnalyst:
		return r
	default:
		return RoleAgent
	}
}

// Agent is the identity on whose behalf orders are placed and coupons are
// redeemed. It is passed explicitly to every operation that records it.
type Agent struct {
	ID   string
	Name string
	Role Role
}

// Is reports whether the agent holds any of the given roles.
func (a Agent) Is(roles ...Role) bool {
	return slices.Contains(roles, a.Role)
}

// Credential is a stored API key and the agent it authenticates.
type Credential struct {
	ID      string
	KeyHash string
	Agent   Agent
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Credential, error)
}
