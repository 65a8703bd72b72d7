package pending

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/localstore"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestOrder(name string) order.Order {
	return order.Order{
		CustomerName:    name,
		CustomerAddress: "1 Main St",
		CustomerMobile1: "0400000000",
		Items:           []order.Item{{ProductID: "p1", Quantity: 2}},
		Subtotal:        decimal.RequireFromString("100.00"),
		DiscountAmount:  decimal.RequireFromString("20.00"),
		TotalAmount:     decimal.RequireFromString("80.00"),
		Date:            fixedNow,
		AgentID:         "agent-1",
		CouponCode:      "SAVE20",
	}
}

func newTestQueue(store localstore.Store) *Queue {
	q := New(store)
	q.now = func() time.Time { return fixedNow }
	return q
}

func TestQueue_EnqueueAssignsUniquePlaceholders(t *testing.T) {
	q := newTestQueue(localstore.NewMemory())
	ctx := context.Background()

	first, err := q.Enqueue(ctx, newTestOrder("a"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, newTestOrder("b"))
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("offline-%d", fixedNow.UnixMilli()), first.ID)
	assert.Equal(t, fmt.Sprintf("offline-%d", fixedNow.UnixMilli()+1), second.ID)
	assert.True(t, order.IsPlaceholder(first.ID))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueue_PreservesOrderAndFields(t *testing.T) {
	q := newTestQueue(localstore.NewMemory())
	ctx := context.Background()

	want := newTestOrder("alice")
	want.CustomerMobile2 = "0411111111"
	queued, err := q.Enqueue(ctx, want)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, newTestOrder("bob"))
	require.NoError(t, err)

	got, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].CustomerName)
	assert.Equal(t, "bob", got[1].CustomerName)

	o := got[0]
	assert.Equal(t, queued.ID, o.ID)
	assert.Equal(t, "0411111111", o.CustomerMobile2)
	assert.Equal(t, want.Items, o.Items)
	assert.True(t, want.Subtotal.Equal(o.Subtotal))
	assert.True(t, want.DiscountAmount.Equal(o.DiscountAmount))
	assert.True(t, want.TotalAmount.Equal(o.TotalAmount))
	assert.True(t, want.Date.Equal(o.Date))
	assert.Equal(t, "agent-1", o.AgentID)
	assert.Equal(t, "SAVE20", o.CouponCode)
}

func TestQueue_RemoveOnlyNamedIDs(t *testing.T) {
	q := newTestQueue(localstore.NewMemory())
	ctx := context.Background()

	a, err := q.Enqueue(ctx, newTestOrder("a"))
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, newTestOrder("b"))
	require.NoError(t, err)
	c, err := q.Enqueue(ctx, newTestOrder("c"))
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, a.ID, c.ID, "offline-unknown"))

	got, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	require.NoError(t, q.Remove(ctx, b.ID))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_EmptyQueueClearsKey(t *testing.T) {
	store := localstore.NewMemory()
	q := newTestQueue(store)
	ctx := context.Background()

	o, err := q.Enqueue(ctx, newTestOrder("a"))
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, o.ID))

	_, ok, err := store.Get(ctx, localstore.KeyPendingOrders)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.db")
	ctx := context.Background()

	store, err := localstore.OpenBolt(path)
	require.NoError(t, err)
	queued, err := newTestQueue(store).Enqueue(ctx, newTestOrder("a"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = localstore.OpenBolt(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	got, err := New(store).List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, queued.ID, got[0].ID)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := New(localstore.NewMemory())
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(ctx, newTestOrder(fmt.Sprintf("c%d", i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, n)

	ids := make(map[string]struct{}, n)
	for _, o := range got {
		ids[o.ID] = struct{}{}
	}
	assert.Len(t, ids, n, "placeholder ids must be unique")
}

type failingStore struct {
	localstore.Store
	setErr error
	getErr error
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, key, value)
}

func TestQueue_StoreErrors(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")

	q := New(&failingStore{Store: localstore.NewMemory(), setErr: diskFull})
	_, err := q.Enqueue(ctx, newTestOrder("a"))
	require.ErrorIs(t, err, diskFull)

	q = New(&failingStore{Store: localstore.NewMemory(), getErr: diskFull})
	_, err = q.List(ctx)
	require.ErrorIs(t, err, diskFull)
}

func TestQueue_CorruptValue(t *testing.T) {
	store := localstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, localstore.KeyPendingOrders, `{"not":"an array"}`))

	_, err := New(store).List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode pending orders")
}

func TestPlaceholder(t *testing.T) {
	base := fixedNow.UnixMilli()
	queued := []order.Order{
		{ID: fmt.Sprintf("offline-%d", base)},
		{ID: fmt.Sprintf("offline-%d", base+1)},
	}
	assert.Equal(t, fmt.Sprintf("offline-%d", base+2), placeholder(fixedNow, queued))
	assert.Equal(t, fmt.Sprintf("offline-%d", base), placeholder(fixedNow, nil))
}
