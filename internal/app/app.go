package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/catalog"
	"github.com/xenking/order-desk/internal/connectivity"
	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/events"
	"github.com/xenking/order-desk/internal/handler"
	"github.com/xenking/order-desk/internal/localstore"
	"github.com/xenking/order-desk/internal/pending"
	"github.com/xenking/order-desk/pkg/health"
	"github.com/xenking/order-desk/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("remote", cfg.Remote.Driver),
		zap.String("local", cfg.Local.Driver),
	)

	// Remote store. Clients connect lazily, so an outage here only means
	// starting offline.
	rs, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		return errors.Wrap(err, "open remote store")
	}
	defer rs.close()

	// Local durable store holding the pending queue and product cache.
	store, err := localstore.Open(ctx, cfg.Local)
	if err != nil {
		return errors.Wrap(err, "open local store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Error("Close local store", zap.Error(err))
		}
	}()

	// Connectivity: one synchronous probe decides the initial mode.
	probeCtx, cancel := context.WithTimeout(ctx, cfg.Connectivity.ProbeTimeout)
	probeErr := rs.probe(probeCtx)
	cancel()
	if probeErr != nil {
		lg.Warn("Remote store unreachable, starting offline", zap.Error(probeErr))
	}
	monitor := connectivity.New(probeErr == nil)

	var prepared atomic.Bool
	prepare := func() {
		if prepared.Load() {
			return
		}
		pctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
		defer cancel()
		if err := rs.prepare(pctx); err != nil {
			lg.Warn("Prepare remote schema", zap.Error(err))
			return
		}
		prepared.Store(true)
		lg.Info("Remote schema ready")
	}
	if monitor.Online() {
		prepare()
	}
	defer monitor.Subscribe(func(online bool) {
		lg.Info("Remote store connectivity changed", zap.Bool("online", online))
		if online {
			prepare()
		}
	})()

	// Domain.
	publisher := events.NewPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Error("Close event publisher", zap.Error(err))
		}
	}()

	coupons := coupon.NewProtocol(rs.coupons)
	products := catalog.New(rs.products, store, monitor, cfg.Remote.Timeout, lg.Named("catalog"))
	pipeline, err := order.NewPipeline(rs.orders, pending.New(store), coupons, products, monitor, order.Config{
		RemoteTimeout:  cfg.Remote.Timeout,
		RetryInterval:  cfg.Connectivity.ProbeInterval,
		Logger:         lg.Named("pipeline"),
		Events:         publisher,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order pipeline")
	}
	pipeline.Start(ctx)

	go monitor.Run(ctx, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, rs.probe)

	// Health: ready means the local store works. The remote store may be
	// down without affecting readiness.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("local-store", 2*time.Second, store.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	// HTTP.
	h := handler.New(
		handler.Config{
			Authenticated: []httpmiddleware.Middleware{
				httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
					PerSecond: cfg.RateLimit.PerSecond,
					Burst:     cfg.RateLimit.Burst,
					KeyFunc:   handler.AgentRateKey,
				}),
			},
		},
		pipeline,
		coupons,
		products,
		monitor,
		handler.NewSecurity(rs.apikeys, []byte(cfg.APIKeyPepper)),
		healthSvc,
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(h.Routes(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.Recovery(),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
			),
			"order-desk",
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := pipeline.Drain(shutdownCtx); err != nil {
			lg.Error("Background work did not finish", zap.Error(err))
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr), zap.Bool("online", monitor.Online()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
