// Package localstore implements the site-local durable key-value store that
// keeps the pending-order queue and the product cache across restarts and
// while the remote store is unreachable.
package localstore

import (
	"context"

	"github.com/go-faster/errors"
)

// Well-known keys.
const (
	KeyPendingOrders = "pending-orders"
	KeyProductsCache = "products-cache"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown local store driver")

// Store is a durable string key-value store. A successful Set is durable
// before it returns.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver        string `default:"bolt" usage:"Local store driver: bolt, redis or memory"`
	Path          string `default:"data/order-desk.db" usage:"bbolt database file"`
	RedisAddr     string `default:"localhost:6379" usage:"Redis address"`
	RedisPassword string `usage:"Redis password"`
	RedisDB       int    `usage:"Redis database number"`
	KeyPrefix     string `default:"orderdesk:" usage:"Prefix for redis keys"`
}

// Open creates the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverBolt, "":
		return OpenBolt(cfg.Path)
	case DriverRedis:
		return DialRedis(ctx, cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", cfg.Driver)
	}
}
