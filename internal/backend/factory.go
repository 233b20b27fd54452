package backend

import (
	"context"
	"fmt"

	"monthly-spend/internal/log"
	"monthly-spend/internal/storage"
	"monthly-spend/internal/storage/memory"
	"monthly-spend/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}
