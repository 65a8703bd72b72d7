package order

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/order-desk/internal/domain/auth"
	"github.com/xenking/order-desk/internal/domain/coupon"
)

const (
	defaultRemoteTimeout = 5 * time.Second
	defaultRetryInterval = 5 * time.Second
	maxRetryInterval     = time.Minute
)

// Config holds optional Pipeline settings. Zero values select defaults.
type Config struct {
	RemoteTimeout  time.Duration
	// RetryInterval is the first delay before replaying orders that were
	// queued while the remote store still looked reachable. It doubles on
	// every failed attempt up to a minute.
	RetryInterval  time.Duration
	Logger         *zap.Logger
	Events         Publisher
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Pipeline accepts orders while the remote store is reachable and queues
// them durably while it is not, replaying the queue once it comes back.
type Pipeline struct {
	orders  Repository
	queue   Queue
	coupons *coupon.Protocol
	prices  PriceBook
	signal  Signal
	events  Publisher

	lg      *zap.Logger
	tracer  trace.Tracer
	metrics *metrics
	timeout time.Duration
	retry   time.Duration
	now     func() time.Time

	// bg is the parent of background work. It outlives requests.
	bg          context.Context
	tasks       tasks
	reconciling singleflight.Group
	unsubscribe func()
	started     atomic.Bool
	retrying    atomic.Bool
	stop        chan struct{}
	stopOnce    sync.Once

	mu   sync.RWMutex
	view []Order
}

// NewPipeline wires a Pipeline. Call Start before serving and Drain on
// shutdown.
func NewPipeline(
	orders Repository,
	queue Queue,
	coupons *coupon.Protocol,
	prices PriceBook,
	signal Signal,
	cfg Config,
) (*Pipeline, error) {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = nopPublisher{}
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}

	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return &Pipeline{
		orders:      orders,
		queue:       queue,
		coupons:     coupons,
		prices:      prices,
		signal:      signal,
		events:      cfg.Events,
		lg:          cfg.Logger,
		tracer:      cfg.TracerProvider.Tracer("github.com/xenking/order-desk/internal/domain/order"),
		metrics:     m,
		timeout:     cfg.RemoteTimeout,
		retry:       cfg.RetryInterval,
		now:         time.Now,
		bg:          context.Background(),
		unsubscribe: func() {},
		stop:        make(chan struct{}),
	}, nil
}

// Start subscribes to connectivity transitions so that the queue is
// replayed whenever the remote store becomes reachable, and does the first
// replay and order list load if it already is.
func (p *Pipeline) Start(ctx context.Context) {
	p.bg = context.WithoutCancel(ctx)
	p.unsubscribe = p.signal.Subscribe(func(online bool) {
		if online {
			p.tasks.spawn(p.reconcileIfPending)
		}
	})
	p.started.Store(true)

	if p.signal.Online() {
		if err := p.RefreshOrders(ctx); err != nil {
			p.lg.Warn("Initial order list load failed", zap.Error(err))
		}
		p.tasks.spawn(p.reconcileIfPending)
	}
}

// Drain stops reacting to connectivity changes and waits for background
// redemptions, event publishing and triggered reconciles to finish. Work
// started after Drain runs inline.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.unsubscribe()
	p.stopOnce.Do(func() { close(p.stop) })
	return p.tasks.wait(ctx)
}

// Submit validates and prices draft on behalf of agent and records it
// remotely when possible, otherwise in the pending queue. Remote failures
// never surface: the returned order carries either a remote id or a
// placeholder id.
func (p *Pipeline) Submit(ctx context.Context, agent auth.Agent, draft Draft) (*Order, error) {
	ctx, span := p.tracer.Start(ctx, "order.Submit")
	defer span.End()

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	o := Order{
		CustomerName:    draft.CustomerName,
		CustomerAddress: draft.CustomerAddress,
		CustomerMobile1: draft.CustomerMobile1,
		CustomerMobile2: draft.CustomerMobile2,
		Items:           slices.Clone(draft.Items),
		Date:            p.now().UTC(),
		AgentID:         agent.ID,
	}

	online := p.signal.Online()

	items, err := p.price(ctx, draft)
	if err != nil {
		return nil, err
	}

	c, online, err := p.resolveCoupon(ctx, draft.CouponCode, online)
	if err != nil {
		return nil, err
	}
	if c != nil {
		o.CouponCode = c.Code
	}

	d, err := coupon.Apply(coupon.Subtotal(items), c)
	if err != nil {
		return nil, errors.Wrap(err, "apply coupon")
	}
	o.Subtotal, o.DiscountAmount, o.TotalAmount = d.Subtotal, d.Amount, d.Total

	if online {
		id, err := p.insertRemote(ctx, o)
		if err == nil {
			o.ID = id
			p.committed(o)
			p.metrics.submitted.Add(ctx, 1, metric.WithAttributes(pathRemote))
			p.lg.Info("Order placed",
				zap.String("order_id", o.ID),
				zap.String("agent_id", o.AgentID),
				zap.String("total", o.TotalAmount.StringFixed(2)),
			)
			return &o, nil
		}
		p.lg.Warn("Remote insert failed, queueing order", zap.Error(err))
	}

	queued, err := p.queue.Enqueue(ctx, o)
	if err != nil {
		span.RecordError(err)
		return nil, &PersistenceError{Err: err}
	}
	p.metrics.submitted.Add(ctx, 1, metric.WithAttributes(pathQueued))
	p.lg.Info("Order queued",
		zap.String("order_id", queued.ID),
		zap.String("agent_id", queued.AgentID),
	)
	if p.signal.Online() {
		// No connectivity transition will replay this order.
		p.scheduleRetry()
	}
	return &queued, nil
}

func (p *Pipeline) price(ctx context.Context, draft Draft) ([]coupon.Item, error) {
	prices, err := p.prices.Prices(ctx, draft.productIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get prices")
	}

	items := make([]coupon.Item, 0, len(draft.Items))
	for _, item := range draft.Items {
		pr, ok := prices[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		items = append(items, coupon.Item{
			ProductID: item.ProductID,
			Price:     pr.Price,
			Quantity:  item.Quantity,
		})
	}
	return items, nil
}

// resolveCoupon returns the coupon to apply and the effective online state.
// A remote failure during validation demotes the submission to offline.
func (p *Pipeline) resolveCoupon(ctx context.Context, code string, online bool) (*coupon.Coupon, bool, error) {
	if code == "" {
		return nil, online, nil
	}

	if online {
		vctx, cancel := context.WithTimeout(ctx, p.timeout)
		c, err := p.coupons.Validate(vctx, code)
		cancel()
		switch {
		case err == nil:
			return c, true, nil
		case errors.Is(err, coupon.ErrInvalidOrUsed), errors.Is(err, coupon.ErrEmptyCode):
			return nil, true, err
		default:
			p.lg.Warn("Coupon validation failed, continuing offline",
				zap.String("coupon", code),
				zap.Error(err),
			)
			online = false
		}
	}

	if c, ok := p.coupons.Cached(code); ok {
		return c, online, nil
	}
	p.lg.Info("No cached validation for coupon, dropping it", zap.String("coupon", code))
	return nil, online, nil
}

func (p *Pipeline) insertRemote(ctx context.Context, o Order) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id, err := p.orders.Insert(rctx, o)
	if err != nil {
		return "", errors.Wrap(ErrRemoteUnavailable, err.Error())
	}
	return id, nil
}

// committed runs the follow-ups of an order that reached the remote store.
func (p *Pipeline) committed(o Order) {
	p.mu.Lock()
	p.view = append(p.view, o)
	p.mu.Unlock()

	p.tasks.spawn(func() {
		ctx, cancel := context.WithTimeout(p.bg, p.timeout)
		defer cancel()
		if err := p.events.OrderPlaced(ctx, o); err != nil {
			p.lg.Warn("Publish order event failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	})

	if o.CouponCode != "" {
		p.tasks.spawn(func() { p.redeem(o) })
	}
}

func (p *Pipeline) redeem(o Order) {
	ctx, cancel := context.WithTimeout(p.bg, p.timeout)
	defer cancel()

	lg := p.lg.With(
		zap.String("coupon", o.CouponCode),
		zap.String("order_id", o.ID),
		zap.String("agent_id", o.AgentID),
	)

	err := p.coupons.Redeem(ctx, o.CouponCode, o.AgentID)
	switch {
	case err == nil:
		p.metrics.redemptions.Add(ctx, 1, metric.WithAttributes(outcomeOK))
		lg.Info("Coupon redeemed")
		if err := p.events.CouponRedeemed(ctx, o.CouponCode, o.AgentID, p.now().UTC()); err != nil {
			lg.Warn("Publish redemption event failed", zap.Error(err))
		}
	case errors.Is(err, coupon.ErrAlreadyRedeemed), errors.Is(err, coupon.ErrInvalidOrUsed):
		p.metrics.redemptions.Add(ctx, 1, metric.WithAttributes(outcomeRejected))
		lg.Warn("Coupon redemption rejected", zap.Error(err))
	default:
		p.metrics.redemptions.Add(ctx, 1, metric.WithAttributes(outcomeFailed))
		lg.Error("Coupon redemption failed", zap.Error(err))
	}
}

// Orders returns the in-memory view of remote orders.
func (p *Pipeline) Orders() []Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.view)
}

// RefreshOrders reloads the in-memory view from the remote store.
func (p *Pipeline) RefreshOrders(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	orders, err := p.orders.List(rctx)
	if err != nil {
		return errors.Wrap(err, "list orders")
	}

	p.mu.Lock()
	p.view = orders
	p.mu.Unlock()
	return nil
}

// Pending returns the queued orders in enqueue order.
func (p *Pipeline) Pending(ctx context.Context) ([]Order, error) {
	orders, err := p.queue.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return orders, nil
}

// OrdersBetween fetches remote orders dated within [from, to]. A zero bound
// is open.
func (p *Pipeline) OrdersBetween(ctx context.Context, from, to time.Time) ([]Order, error) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	orders, err := p.orders.List(rctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	filtered := orders[:0]
	for _, o := range orders {
		if !from.IsZero() && o.Date.Before(from) {
			continue
		}
		if !to.IsZero() && o.Date.After(to) {
			continue
		}
		filtered = append(filtered, o)
	}
	slices.SortStableFunc(filtered, func(a, b Order) int {
		return a.Date.Compare(b.Date)
	})
	return filtered, nil
}

// tasks tracks background goroutines so that shutdown can wait for them.
type tasks struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (t *tasks) spawn(fn func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		fn()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *tasks) wait(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
