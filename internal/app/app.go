// Package app wires the coursehub server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/auth"
	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
	"github.com/xenking/coursehub/internal/gateway"
	"github.com/xenking/coursehub/internal/handler"
	"github.com/xenking/coursehub/internal/storage/postgres"
	"github.com/xenking/coursehub/pkg/health"
	"github.com/xenking/coursehub/pkg/httpmiddleware"
)

// Run creates all dependencies and serves HTTP until ctx is done, then shuts
// down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("env", cfg.Env),
		zap.Bool("dev_mock", cfg.Payments.DevMock),
	)
	if cfg.Payments.DevMock {
		lg.Warn("Mock payment route is enabled, orders can be marked paid without the provider")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:     "postgres",
		Probe:    health.Readiness,
		Critical: true,
		Timeout:  5 * time.Second,
		Func:     health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name:     "goroutines",
		Probe:    health.Liveness,
		Critical: true,
		Func:     health.GoroutineCountCheck(10000),
	})

	notifiers, err := NewNotifiers(cfg)
	if err != nil {
		return errors.Wrap(err, "create notifiers")
	}
	defer notifiers.Close()
	if notifiers.Broker != nil {
		healthSvc.Register(health.Check{
			Name:  "rabbitmq",
			Probe: health.Readiness,
			Func:  health.PingCheck(notifiers.Broker),
		})
	}

	metrics, err := payment.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	courseRepo := postgres.NewCourseRepository(pool)
	enrollmentRepo := postgres.NewEnrollmentRepository(pool)

	// Domain services.
	ledger := order.NewLedger(orderRepo, cfg.Gateway.Provider)
	enrollments := enrollment.NewService(enrollmentRepo)
	gw := gateway.New(cfg.GatewayClient(), gateway.WithTelemetry(m.TracerProvider(), m.MeterProvider()))
	confirmer := payment.NewConfirmer(
		ledger,
		gw,
		course.NewResolver(courseRepo),
		courseRepo,
		payment.NewReconciler(enrollments, notifiers),
		metrics,
	)
	checkout := payment.NewCheckoutService(ledger, courseRepo, gw, cfg.Gateway.Currency)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{
			WebhookSecret:    cfg.Webhook.Secret,
			WebhookTolerance: cfg.Webhook.Tolerance,
			DevMock:          cfg.Payments.DevMock,
		},
		checkout,
		confirmer,
		enrollments,
		courseRepo,
	)
	authn := auth.New(cfg.Auth.JWTSecret, cfg.Auth.CookieName)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Covers a provider round trip on the confirmation routes.
		WriteTimeout:   cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   exemptFromRateLimit,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("coursehub", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			authn.Middleware(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// exemptFromRateLimit lets provider webhook retries and probes through.
func exemptFromRateLimit(r *http.Request) bool {
	return r.URL.Path == "/api/payments/webhook" ||
		r.URL.Path == "/livez" ||
		r.URL.Path == "/readyz"
}
