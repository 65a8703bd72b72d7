package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/order-desk/internal/connectivity"
	"github.com/xenking/order-desk/internal/domain/auth"
	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/mongostore"
	"github.com/xenking/order-desk/internal/repository"
)

// remote bundles the repositories of one remote store driver.
type remote struct {
	orders   order.Repository
	coupons  coupon.Repository
	products product.Repository
	apikeys  auth.Repository

	// probe checks reachability.
	probe connectivity.ProbeFunc
	// prepare brings the schema up to date. It needs the store reachable.
	prepare func(ctx context.Context) error
	close   func()
}

func openRemote(ctx context.Context, cfg RemoteConfig) (*remote, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		return &remote{
			orders:   repository.NewOrderRepository(pool),
			coupons:  repository.NewCouponRepository(pool),
			products: repository.NewProductRepository(pool),
			apikeys:  repository.NewAPIKeyRepository(pool),
			probe:    pool.Ping,
			prepare: func(ctx context.Context) error {
				return repository.RunMigrations(ctx, pool)
			},
			close: pool.Close,
		}, nil
	case DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "create mongo client")
		}
		db := client.Database(cfg.MongoDatabase)
		return &remote{
			orders:   mongostore.NewOrderRepository(db),
			coupons:  mongostore.NewCouponRepository(db),
			products: mongostore.NewProductRepository(db),
			apikeys:  mongostore.NewAPIKeyRepository(db),
			probe: func(ctx context.Context) error {
				return mongostore.Ping(ctx, client)
			},
			prepare: func(ctx context.Context) error {
				return mongostore.EnsureIndexes(ctx, db)
			},
			close: func() {
				_ = client.Disconnect(context.Background())
			},
		}, nil
	default:
		return nil, errors.Errorf("unknown remote driver %q", cfg.Driver)
	}
}
