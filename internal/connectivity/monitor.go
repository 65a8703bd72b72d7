// Package connectivity tracks whether the remote store is reachable.
//
// The Monitor is both a signal that can be read and set directly and a
// prober: Run checks the remote store periodically and applies
// failure/success thresholds so that a single dropped probe does not flip
// the whole site into offline mode.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks reachability of the remote store. It returns nil when
// the store answered.
type ProbeFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

type subscriber struct {
	id int
	fn func(online bool)
}

// Monitor holds the connectivity state and notifies subscribers on change.
type Monitor struct {
	online  atomic.Bool
	lastErr atomic.Pointer[error]

	// transition serialises Set so that handlers observe transitions in
	// order. Handlers must not call Set.
	transition sync.Mutex

	mu     sync.Mutex
	subs   []subscriber
	nextID int

	failureThreshold int
	successThreshold int

	// probe counters, only touched by the Run goroutine.
	consecutiveFails int
	consecutiveOK    int
}

// New creates a Monitor with the given initial state.
func New(online bool) *Monitor {
	m := &Monitor{
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
	}
	m.online.Store(online)
	return m
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// LastError returns the error of the most recent probe, or nil.
func (m *Monitor) LastError() error {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Set updates the state. Subscribers are called, in registration order and
// without internal locks held, only when the state actually changes.
func (m *Monitor) Set(online bool) {
	m.transition.Lock()
	defer m.transition.Unlock()

	if m.online.Swap(online) == online {
		return
	}

	m.mu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(online)
	}
}

// Subscribe registers fn for transitions. The returned function removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Run probes every interval until ctx is done, starting immediately. Each
// probe is bounded by timeout.
func (m *Monitor) Run(ctx context.Context, interval, timeout time.Duration, probe ProbeFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.probeOnce(ctx, timeout, probe)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx, timeout, probe)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context, timeout time.Duration, probe ProbeFunc) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := probe(probeCtx)
	m.lastErr.Store(&err)

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down, not a remote failure.
			return
		}
		m.consecutiveOK = 0
		m.consecutiveFails++
		if m.consecutiveFails >= m.failureThreshold {
			m.Set(false)
		}
		return
	}

	m.consecutiveFails = 0
	m.consecutiveOK++
	if m.consecutiveOK >= m.successThreshold {
		m.Set(true)
	}
}
