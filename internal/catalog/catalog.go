// Package catalog serves the product list from the remote store and keeps a
// local copy for pricing orders while offline.
package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/localstore"
)

var _ order.PriceBook = (*Catalog)(nil)

// Signal reports whether the remote store is reachable.
type Signal interface {
	Online() bool
}

// Catalog is a read-through product cache.
type Catalog struct {
	repo    product.Repository
	store   localstore.Store
	signal  Signal
	timeout time.Duration
	lg      *zap.Logger

	mu     sync.RWMutex
	loaded bool
	cached []product.Product
}

// New creates a Catalog. The remote repository is only consulted while
// signal reports online.
func New(repo product.Repository, store localstore.Store, signal Signal, timeout time.Duration, lg *zap.Logger) *Catalog {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Catalog{
		repo:    repo,
		store:   store,
		signal:  signal,
		timeout: timeout,
		lg:      lg,
	}
}

// List returns the remote product list when reachable, refreshing the
// local copy, and the local copy otherwise.
func (c *Catalog) List(ctx context.Context) ([]product.Product, error) {
	if c.signal.Online() {
		products, err := c.fetch(ctx)
		if err == nil {
			return products, nil
		}
		c.lg.Warn("Remote product list failed, serving cache", zap.Error(err))
	}
	return c.load(ctx)
}

// Prices returns the products with the given ids that the catalog knows.
// Unknown ids are absent from the result.
func (c *Catalog) Prices(ctx context.Context, ids []string) (map[string]product.Product, error) {
	c.mu.RLock()
	products, loaded := c.cached, c.loaded
	c.mu.RUnlock()

	if !loaded || !containsAll(products, ids) {
		var err error
		if products, err = c.List(ctx); err != nil {
			return nil, err
		}
	}

	index := product.Index(products)
	out := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		if p, ok := index[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *Catalog) fetch(ctx context.Context) ([]product.Product, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	products, err := c.repo.List(rctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	c.remember(products)
	if err := c.store.Set(ctx, localstore.KeyProductsCache, encodeProducts(products)); err != nil {
		c.lg.Warn("Write product cache failed", zap.Error(err))
	}
	return products, nil
}

func (c *Catalog) load(ctx context.Context) ([]product.Product, error) {
	c.mu.RLock()
	if c.loaded {
		products := slices.Clone(c.cached)
		c.mu.RUnlock()
		return products, nil
	}
	c.mu.RUnlock()

	raw, ok, err := c.store.Get(ctx, localstore.KeyProductsCache)
	if err != nil {
		return nil, errors.Wrap(err, "read product cache")
	}
	if !ok {
		return nil, nil
	}

	products, err := decodeProducts(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode product cache")
	}
	c.remember(products)
	return products, nil
}

func (c *Catalog) remember(products []product.Product) {
	c.mu.Lock()
	c.cached = slices.Clone(products)
	c.loaded = true
	c.mu.Unlock()
}

func containsAll(products []product.Product, ids []string) bool {
	for _, id := range ids {
		if !slices.ContainsFunc(products, func(p product.Product) bool { return p.ID == id }) {
			return false
		}
	}
	return true
}
