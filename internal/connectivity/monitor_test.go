package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SetNotifiesOnTransitionOnly(t *testing.T) {
	m := New(false)

	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, m.Online())
}

func TestMonitor_SubscribersRunInOrder(t *testing.T) {
	m := New(false)

	var order []int
	m.Subscribe(func(bool) { order = append(order, 1) })
	m.Subscribe(func(bool) { order = append(order, 2) })
	m.Subscribe(func(bool) { order = append(order, 3) })

	m.Set(true)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := New(true)

	var calls int
	cancel := m.Subscribe(func(bool) { calls++ })
	m.Set(false)
	cancel()
	m.Set(true)

	assert.Equal(t, 1, calls)
}

func TestMonitor_HandlerMaySubscribe(t *testing.T) {
	m := New(false)

	done := make(chan struct{})
	m.Subscribe(func(bool) {
		// Must not deadlock: handlers run without the subscriber lock.
		m.Subscribe(func(bool) {})
		close(done)
	})
	m.Set(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler deadlocked")
	}
}

func TestMonitor_ProbeThresholds(t *testing.T) {
	m := New(true)
	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("unreachable") }
	ok := func(context.Context) error { return nil }

	m.probeOnce(ctx, time.Second, fail)
	m.probeOnce(ctx, time.Second, fail)
	assert.True(t, m.Online(), "two failures stay below the threshold")
	require.EqualError(t, m.LastError(), "unreachable")

	m.probeOnce(ctx, time.Second, fail)
	assert.False(t, m.Online())

	m.probeOnce(ctx, time.Second, ok)
	assert.True(t, m.Online())
	assert.NoError(t, m.LastError())
}

func TestMonitor_ProbeFailureCountResetsOnSuccess(t *testing.T) {
	m := New(true)
	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("unreachable") }
	ok := func(context.Context) error { return nil }

	m.probeOnce(ctx, time.Second, fail)
	m.probeOnce(ctx, time.Second, fail)
	m.probeOnce(ctx, time.Second, ok)
	m.probeOnce(ctx, time.Second, fail)
	m.probeOnce(ctx, time.Second, fail)

	assert.True(t, m.Online())
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	m := New(true)
	m.failureThreshold = 1

	m.probeOnce(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.False(t, m.Online())
	require.ErrorIs(t, m.LastError(), context.DeadlineExceeded)
}

func TestMonitor_Run(t *testing.T) {
	m := New(false)

	var mu sync.Mutex
	var transitions []bool
	m.Subscribe(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, time.Hour, time.Second, func(context.Context) error { return nil })
	}()

	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond,
		"first probe runs immediately")

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, transitions)
}
