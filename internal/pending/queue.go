// Package pending keeps orders that could not reach the remote store in the
// local durable store until they are replayed.
package pending

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/localstore"
)

var _ order.Queue = (*Queue)(nil)

// Queue is an ordered list of orders persisted as a single value. Every
// operation reads and rewrites the whole list under one mutex, so
// concurrent enqueues and removals never lose each other's writes.
type Queue struct {
	store localstore.Store
	key   string
	now   func() time.Time

	mu sync.Mutex
}

// New returns a Queue stored under localstore.KeyPendingOrders.
func New(store localstore.Store) *Queue {
	return &Queue{
		store: store,
		key:   localstore.KeyPendingOrders,
		now:   time.Now,
	}
}

// Enqueue assigns o a placeholder id unique within the queue, appends it and
// persists the queue.
func (q *Queue) Enqueue(ctx context.Context, o order.Order) (order.Order, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders, err := q.load(ctx)
	if err != nil {
		return order.Order{}, err
	}

	o.ID = placeholder(q.now(), orders)
	orders = append(orders, o)

	if err := q.save(ctx, orders); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// List returns the queued orders in enqueue order.
func (q *Queue) List(ctx context.Context) ([]order.Order, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued orders.
func (q *Queue) Len(ctx context.Context) (int, error) {
	orders, err := q.List(ctx)
	return len(orders), err
}

// Remove deletes the orders with the given ids and keeps everything else,
// including orders enqueued after the caller last read the queue.
func (q *Queue) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	orders, err := q.load(ctx)
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(orders, func(o order.Order) bool {
		return slices.Contains(ids, o.ID)
	})
	return q.save(ctx, kept)
}

func (q *Queue) load(ctx context.Context) ([]order.Order, error) {
	raw, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		return nil, errors.Wrap(err, "read pending orders")
	}
	if !ok || raw == "" {
		return nil, nil
	}

	orders, err := decodeOrders(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode pending orders")
	}
	return orders, nil
}

func (q *Queue) save(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		if err := q.store.Remove(ctx, q.key); err != nil {
			return errors.Wrap(err, "clear pending orders")
		}
		return nil
	}

	if err := q.store.Set(ctx, q.key, encodeOrders(orders)); err != nil {
		return errors.Wrap(err, "write pending orders")
	}
	return nil
}

// placeholder derives an id from the current time in milliseconds, bumping
// it past any id already queued.
func placeholder(now time.Time, queued []order.Order) string {
	ms := now.UnixMilli()
	for {
		id := order.PlaceholderPrefix + strconv.FormatInt(ms, 10)
		if !slices.ContainsFunc(queued, func(o order.Order) bool { return o.ID == id }) {
			return id
		}
		ms++
	}
}
