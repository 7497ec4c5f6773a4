package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/booking-engine/cmd/mainconfig"
	"github.com/wolfman30/booking-engine/internal/api/router"
	"github.com/wolfman30/booking-engine/internal/app/bootstrap"
	"github.com/wolfman30/booking-engine/internal/availability"
	"github.com/wolfman30/booking-engine/internal/bookings"
	"github.com/wolfman30/booking-engine/internal/business"
	appconfig "github.com/wolfman30/booking-engine/internal/config"
	"github.com/wolfman30/booking-engine/internal/events"
	httpmiddleware "github.com/wolfman30/booking-engine/internal/http/middleware"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/observability/tracing"
	"github.com/wolfman30/booking-engine/internal/waitlist"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "booking-api",
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	for _, worker := range app.workers {
		go worker(workers)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "backend", app.backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type application struct {
	handler http.Handler
	backend string
	workers []func(ctx context.Context)
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

// buildApp wires stores, services and handlers. The booking service and the
// waitlist reference each other: cancellations notify the waitlist and an
// accepted offer books through the booking service.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}
	metricsHandler, m := setupMetrics()
	checks := map[string]router.Check{}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var (
		pool *pgxpool.Pool
		err  error
	)
	if !cfg.UseMemoryStores {
		pool, err = bootstrap.BuildPostgresPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		checks["postgres"] = pool.Ping
	}

	stores, err := bootstrap.BuildStores(cfg, pool, m, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	app.backend = stores.Backend

	configs, cached := bootstrap.BuildBusinessStore(cfg, redisClient, logger)
	if cached != nil {
		app.workers = append(app.workers, cached.Watch)
	}

	handler, err := deliveryHandler(ctx, cfg, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	if closer, ok := handler.(io.Closer); ok {
		app.closers = append(app.closers, func() { _ = closer.Close() })
	}
	if _, ok := handler.(*events.KafkaHandler); ok {
		checks["kafka"] = events.KafkaReadyCheck(cfg.EventsKafkaBrokers)
	}
	publisher, deliverer := bootstrap.BuildPublisher(cfg, pool, handler, logger)
	if deliverer != nil {
		app.workers = append(app.workers, deliverer.Start)
	}

	engine := availability.NewEngine(configs, stores.Staff, stores.Appointments, bootstrap.BuildResolver(cfg, m, logger),
		availability.Options{
			Granularity:      cfg.SlotGranularity,
			MaxHorizonDays:   cfg.MaxHorizonDays,
			DefaultRangeDays: cfg.DefaultRangeDays,
			StorageTimeout:   cfg.StorageTimeout,
		}, logger).WithMetrics(m)

	bookingSvc := bookings.NewService(stores.Appointments, engine, logger).
		WithPublisher(publisher).
		WithMetrics(m).
		WithStorageTimeout(cfg.StorageTimeout)
	waitlistSvc := waitlist.NewService(stores.Waitlist, configs, logger).
		WithBooker(bookingSvc).
		WithPublisher(publisher).
		WithMetrics(m).
		WithFallbackLimit(cfg.WaitlistFallbackLimit).
		WithStorageTimeout(cfg.StorageTimeout)
	bookingSvc.WithSlotReleaseListener(waitlistSvc)

	api := router.New(&router.Config{
		Logger:             logger,
		Availability:       availability.NewHandler(engine, logger),
		Bookings:           bookings.NewHandler(bookingSvc, logger),
		Waitlist:           waitlist.NewHandler(waitlistSvc, logger),
		Business:           business.NewHandler(configs, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Limiter:            buildLimiter(cfg, redisClient, app),
		Checks:             checks,
	})
	app.handler = otelhttp.NewHandler(api, "booking-api")
	return app, nil
}

func deliveryHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, error) {
	if strings.TrimSpace(cfg.EventsQueueURL) == "" {
		return bootstrap.BuildDeliveryHandler(cfg, nil, logger), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bootstrap.BuildDeliveryHandler(cfg, mainconfig.NewSQSClient(awsCfg, cfg), logger), nil
}

func buildLimiter(cfg *appconfig.Config, redisClient *redis.Client, app *application) httpmiddleware.Limiter {
	if cfg.RateLimitPerSecond <= 0 {
		return nil
	}
	if cfg.RateLimitShared && redisClient != nil {
		return httpmiddleware.NewRedisLimiter(redisClient, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	app.workers = append(app.workers, func(ctx context.Context) {
		limiter.Sweep(ctx, 5*time.Minute, 10*time.Minute)
	})
	return limiter
}
