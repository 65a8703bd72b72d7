package order

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Synced pairs the placeholder of a queued order with the id the remote
// store assigned when it was replayed.
type Synced struct {
	PlaceholderID string
	ID            string
}

// SyncResult is the outcome of a reconcile pass.
type SyncResult struct {
	Synced []Synced
	Failed []string
}

// Reconcile replays the pending queue against the remote store in enqueue
// order. Orders that were inserted are removed from the queue and have their
// coupons redeemed; the rest stay queued and are reported in a
// *PartialSyncError. Concurrent calls share one in-flight pass.
func (p *Pipeline) Reconcile(ctx context.Context) (*SyncResult, error) {
	if !p.signal.Online() {
		return nil, ErrRemoteUnavailable
	}

	ch := p.reconciling.DoChan("reconcile", func() (any, error) {
		return p.reconcile(context.WithoutCancel(ctx))
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(*SyncResult)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) reconcileIfPending() {
	n, err := p.queue.Len(p.bg)
	if err != nil {
		p.lg.Error("Read pending queue", zap.Error(err))
		return
	}
	if n == 0 {
		return
	}

	p.lg.Info("Connectivity restored, syncing pending orders", zap.Int("pending", n))
	res, err := p.Reconcile(p.bg)
	if err != nil {
		p.lg.Warn("Pending order sync incomplete", zap.Error(err))
		if p.signal.Online() {
			p.scheduleRetry()
		}
		return
	}
	p.lg.Info("Pending orders synced", zap.Int("synced", len(res.Synced)))
}

// scheduleRetry starts a background loop that replays the pending queue
// while the signal stays online. At most one loop runs at a time.
func (p *Pipeline) scheduleRetry() {
	if !p.started.Load() || !p.retrying.CompareAndSwap(false, true) {
		return
	}
	p.tasks.spawn(p.retryPending)
}

func (p *Pipeline) retryPending() {
	delay := p.retry
	for {
		timer := time.NewTimer(delay)
		select {
		case <-p.stop:
			timer.Stop()
			p.retrying.Store(false)
			return
		case <-timer.C:
		}

		if p.retryOnce() {
			delay = min(delay*2, maxRetryInterval)
			continue
		}

		p.retrying.Store(false)
		// An order queued between the last check and the store above would
		// otherwise wait for the next transition.
		if !p.needsRetry() || !p.retrying.CompareAndSwap(false, true) {
			return
		}
		delay = p.retry
	}
}

// retryOnce replays the queue and reports whether another attempt is due.
func (p *Pipeline) retryOnce() bool {
	if !p.needsRetry() {
		return false
	}

	res, err := p.Reconcile(p.bg)
	if err != nil {
		p.lg.Warn("Pending order retry incomplete", zap.Error(err))
		return p.signal.Online()
	}
	p.lg.Info("Pending orders synced on retry", zap.Int("synced", len(res.Synced)))
	return false
}

// needsRetry reports whether orders are queued while the signal is online.
// Offline queues are replayed by the connectivity transition instead.
func (p *Pipeline) needsRetry() bool {
	if !p.signal.Online() {
		return false
	}
	n, err := p.queue.Len(p.bg)
	if err != nil {
		p.lg.Error("Read pending queue", zap.Error(err))
		return false
	}
	return n > 0
}

func (p *Pipeline) reconcile(ctx context.Context) (*SyncResult, error) {
	ctx, span := p.tracer.Start(ctx, "order.Reconcile")
	defer span.End()

	pending, err := p.queue.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	res := &SyncResult{}
	var (
		removed []string
		synced  []Order
	)
	for _, o := range pending {
		placeholder := o.ID
		id, err := p.insertRemote(ctx, o)
		if err != nil {
			res.Failed = append(res.Failed, placeholder)
			p.lg.Warn("Pending order not synced",
				zap.String("placeholder_id", placeholder),
				zap.Error(err),
			)
			continue
		}

		o.ID = id
		removed = append(removed, placeholder)
		synced = append(synced, o)
		res.Synced = append(res.Synced, Synced{PlaceholderID: placeholder, ID: id})
	}

	if len(removed) > 0 {
		if err := p.queue.Remove(ctx, removed...); err != nil {
			// The inserted orders stay queued and will be inserted again on
			// the next pass.
			span.RecordError(err)
			return res, &PersistenceError{Err: err}
		}
	}

	for _, o := range synced {
		p.committed(o)
	}
	p.metrics.synced.Add(ctx, int64(len(res.Synced)), metric.WithAttributes(outcomeOK))
	p.metrics.synced.Add(ctx, int64(len(res.Failed)), metric.WithAttributes(outcomeFailed))

	if len(synced) > 0 {
		if err := p.RefreshOrders(ctx); err != nil {
			p.lg.Warn("Refresh orders after sync failed", zap.Error(err))
		}
	}

	if len(res.Failed) > 0 {
		return res, &PartialSyncError{Synced: res.Synced, Failed: res.Failed}
	}
	return res, nil
}
