package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/product"
)

// PlaceholderPrefix starts the id of an order that has not reached the
// remote store yet.
const PlaceholderPrefix = "offline-"

// IsPlaceholder reports whether id was assigned locally to a queued order.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Order is a customer order placed by an agent. Date is stamped once at
// submission and never changes afterwards.
type Order struct {
	ID              string
	CustomerName    string
	CustomerAddress string
	CustomerMobile1 string
	CustomerMobile2 string
	Items           []Item
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	Date            time.Time
	AgentID         string
	CouponCode      string
}

// Item is a single line of an order.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Draft is the agent's input for a new order.
type Draft struct {
	CustomerName    string
	CustomerAddress string
	CustomerMobile1 string
	CustomerMobile2 string
	Items           []Item
	CouponCode      string
}

// Validate checks the draft before any pricing or storage happens.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.CustomerName) == "":
		return &MissingFieldError{Field: "customerName"}
	case strings.TrimSpace(d.CustomerAddress) == "":
		return &MissingFieldError{Field: "customerAddress"}
	case strings.TrimSpace(d.CustomerMobile1) == "":
		return &MissingFieldError{Field: "customerMobile1"}
	}

	if len(d.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range d.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	return nil
}

func (d Draft) productIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Repository is the remote order store.
type Repository interface {
	// Insert stores o and returns the id assigned by the store. Any id
	// already on o is ignored.
	Insert(ctx context.Context, o Order) (string, error)
	List(ctx context.Context) ([]Order, error)
}

// Queue is the durable pending-order queue.
type Queue interface {
	// Enqueue assigns a placeholder id to o, appends it and persists the
	// queue before returning.
	Enqueue(ctx context.Context, o Order) (Order, error)
	List(ctx context.Context) ([]Order, error)
	Len(ctx context.Context) (int, error)
	// Remove deletes the orders with the given placeholder ids only.
	Remove(ctx context.Context, ids ...string) error
}

// PriceBook resolves current product prices.
type PriceBook interface {
	Prices(ctx context.Context, ids []string) (map[string]product.Product, error)
}

// Signal reports and announces remote store reachability.
type Signal interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// Publisher emits domain events. Delivery is best effort.
type Publisher interface {
	OrderPlaced(ctx context.Context, o Order) error
	CouponRedeemed(ctx context.Context, code, agentID string, at time.Time) error
}

type nopPublisher struct{}

func (nopPublisher) OrderPlaced(context.Context, Order) error { return nil }

func (nopPublisher) CouponRedeemed(context.Context, string, string, time.Time) error { return nil }
