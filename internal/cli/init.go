// Package cli provides the initialization shared by cmd/aggregator and
// cmd/spendctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/backend"
	"monthly-spend/internal/cache"
	"monthly-spend/internal/config"
	"monthly-spend/internal/log"
)

// SetupLogger builds the process logger for level and makes it the slog
// default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development. A missing file is
// not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Stores is the backend store plus the card cache in front of it.
type Stores struct {
	aggregate.Store
	Cards   *cache.CardCache
	cleanup backend.CleanupFunc
}

// OpenStores creates the configured backend and wraps its cards with the
// cache.
func OpenStores(ctx context.Context, logger *log.Logger, cfg *config.Config) (*Stores, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	cards := cache.NewCardCache(res.Store, cfg.CardCacheSize, cfg.CardCacheTTL)
	if cards.Enabled() {
		logger.Info("Card cache enabled", "size", cfg.CardCacheSize, "ttl", cfg.CardCacheTTL)
	}
	return &Stores{Store: res.Store, Cards: cards, cleanup: res.Cleanup}, nil
}

func (s *Stores) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
