package backend

import (
	"context"

	"monthly-spend/internal/aggregate"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the store and its cleanup function.
type BackendResult struct {
	Store   aggregate.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	// Memory backend: directory holding seed_cards.txt
	DataDirectory string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
