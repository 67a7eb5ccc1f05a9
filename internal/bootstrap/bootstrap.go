// Package bootstrap builds the collaborators shared by the server and the CLI
// from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/dilemma/internal/config"
	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/Harshitk-cp/dilemma/internal/store/local"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store is an opened session store with its health check and release func.
type Store struct {
	Sessions domain.SessionStore
	Ping     func(ctx context.Context) error
	Close    func()
}

// NewLogger returns a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// OpenStore opens the backend selected by driver. The postgres backend
// applies pending migrations before returning.
func OpenStore(ctx context.Context, driver string, logger *zap.Logger) (*Store, error) {
	switch driver {
	case "sqlite":
		path := config.SQLitePath()
		s, err := local.NewSessionStore(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("using sqlite store", zap.String("path", path))
		return &Store{Sessions: s, Ping: s.Ping, Close: func() { _ = s.Close() }}, nil

	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		applied, err := store.Migrate(ctx, pool, config.MigrationsPath())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to database", zap.Strings("migrations_applied", applied))
		return &Store{Sessions: store.NewSessionStore(pool), Ping: pool.Ping, Close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// NewLLMClient builds the configured provider. A provider that cannot be
// initialised is logged and nil is returned; the engine then uses its
// deterministic fallbacks.
func NewLLMClient(logger *zap.Logger) domain.LLMClient {
	provider := config.LLMProvider()
	client, err := llm.NewClient(provider, config.LLMAPIKey(), config.LLMModel())
	if err != nil {
		logger.Warn("LLM client initialization failed", zap.String("provider", provider), zap.Error(err))
		return nil
	}
	logger.Info("LLM client initialized", zap.String("provider", provider))
	return client
}
