package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"monthly-spend/internal/amqp"
	"monthly-spend/internal/cli"
	"monthly-spend/internal/config"
	"monthly-spend/internal/core"
	apphttp "monthly-spend/internal/http"
	"monthly-spend/internal/log"
	"monthly-spend/internal/metrics"
	"monthly-spend/internal/middleware/ratelimit"
	"monthly-spend/internal/services"
	"monthly-spend/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.Default().Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Aggregator stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Aggregator stopped gracefully")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	stores, err := cli.OpenStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("Failed to close store", log.FieldError, err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(reg)
	if err != nil {
		return err
	}

	dispatcher := services.NewDispatcher(
		services.NewExpenseProcessor(stores, stores.Cards, logger.WithComponent(log.ComponentExpense)),
		services.NewSubscriptionProcessor(stores, logger.WithComponent(log.ComponentSubscription)),
		logger.WithComponent(log.ComponentDispatcher),
	)
	events := worker.NewEventWorker(dispatcher, recorder, logger.WithComponent(log.ComponentWorker))

	deps := apphttp.Deps{
		Events:     events,
		Aggregates: stores,
		Cards:      stores.Cards,
		Logger:     logger.WithComponent(log.ComponentHTTP),
	}
	if cfg.MetricsEnabled {
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if p, ok := stores.Store.(apphttp.Pinger); ok {
		deps.Ready = p
	}
	if cfg.RateLimitPerMinute > 0 {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
		defer deps.Limiter.Stop()
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = apphttp.DefaultTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Connect the broker before anything runs, so a failure here leaves
	// nothing to tear down.
	var client *amqp.Client
	if cfg.ConsumerEnabled() {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer client.Close()
	} else {
		logger.Info("AMQP consumer disabled - no AMQP_URL provided")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if client != nil {
		g.Go(func() error {
			logger.Info("Starting change event consumer",
				"queue", cfg.AMQPQueue,
				"concurrency", cfg.WorkerConcurrency)
			return client.Run(gctx, cfg.WorkerConcurrency, func(ctx context.Context, ev core.ChangeEvent) error {
				_, err := events.HandleChange(ctx, ev)
				return err
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("Shutting down HTTP server", "timeout", cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.LogError(shutdownCtx, "Server shutdown error", err, log.OpShutdown, nil)
			return err
		}
		return nil
	})

	return g.Wait()
}
