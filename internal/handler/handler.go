// Package handler exposes the order desk over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/order-desk/internal/catalog"
	"github.com/xenking/order-desk/internal/domain/auth"
	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/pkg/health"
	"github.com/xenking/order-desk/pkg/httpmiddleware"
)

// Orders is the order pipeline as seen by the HTTP layer.
type Orders interface {
	Submit(ctx context.Context, agent auth.Agent, draft order.Draft) (*order.Order, error)
	Orders() []order.Order
	RefreshOrders(ctx context.Context) error
	Pending(ctx context.Context) ([]order.Order, error)
	OrdersBetween(ctx context.Context, from, to time.Time) ([]order.Order, error)
	Reconcile(ctx context.Context) (*order.SyncResult, error)
}

// Coupons validates coupons and reports redeemed ones.
type Coupons interface {
	Validate(ctx context.Context, code string) (*coupon.Coupon, error)
	ListUsed(ctx context.Context) ([]coupon.Coupon, error)
}

// Products lists the catalog.
type Products interface {
	List(ctx context.Context) ([]product.Product, error)
}

// Connectivity reports remote store reachability.
type Connectivity interface {
	Online() bool
	LastError() error
}

var (
	_ Orders   = (*order.Pipeline)(nil)
	_ Coupons  = (*coupon.Protocol)(nil)
	_ Products = (*catalog.Catalog)(nil)
)

// Config holds non-dependency settings of the Handler.
type Config struct {
	// Authenticated middlewares run after the agent has been resolved, so
	// they can key on it.
	Authenticated []httpmiddleware.Middleware
}

// Handler serves the order desk API.
type Handler struct {
	orders       Orders
	coupons      Coupons
	products     Products
	connectivity Connectivity
	security     *Security
	health       *health.Health
	cfg          Config
}

// New constructs a Handler.
func New(
	cfg Config,
	orders Orders,
	coupons Coupons,
	products Products,
	connectivity Connectivity,
	security *Security,
	hc *health.Health,
) *Handler {
	return &Handler{
		orders:       orders,
		coupons:      coupons,
		products:     products,
		connectivity: connectivity,
		security:     security,
		health:       hc,
		cfg:          cfg,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/livez", h.health.LiveEndpoint)
	r.Get("/readyz", h.health.ReadyEndpoint)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.security.Authenticate)
		for _, m := range h.cfg.Authenticated {
			r.Use(m)
		}

		r.Get("/products", h.listProducts)
		r.Get("/connectivity", h.getConnectivity)

		r.Post("/orders", h.placeOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/pending", h.listPending)

		r.Post("/coupons/validate", h.validateCoupon)

		r.With(RequireRole(auth.RoleAdmin)).Post("/sync", h.sync)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleAdmin, auth.RoleAnalyst))
			r.Get("/orders", h.ordersBetween)
			r.Get("/coupons/used", h.usedCoupons)
		})
	})

	return r
}
