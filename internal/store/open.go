// Package store selects and opens the configured conversation store.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/db"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/store/memory"
)

// Handle is an open store and the function that releases it.
type Handle struct {
	chat.Store
	close func(context.Context) error
}

// Close releases the underlying connection, if any.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil || h.close == nil {
		return nil
	}
	return h.close(ctx)
}

// Ping checks the backend connection. Stores without a connection always succeed.
func (h *Handle) Ping(ctx context.Context) error {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// WipeData deletes all conversations and messages. Use for testing only.
func (h *Handle) WipeData(ctx context.Context) error {
	if w, ok := h.Store.(interface{ WipeData(context.Context) error }); ok {
		return w.WipeData(ctx)
	}
	return nil
}

// Open connects to the backend named by cfg.StorageBackend and, for
// SurrealDB, applies the schema.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, collector *metrics.Collector) (*Handle, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		logger.Info("using in-memory store; data is lost on exit")
		return &Handle{Store: memory.New(cfg.DefaultTitle)}, nil

	case config.StorageSurrealDB, "":
		client, err := db.NewClient(ctx, db.Config{
			URL:          cfg.SurrealDBURL,
			Namespace:    cfg.SurrealDBNamespace,
			Database:     cfg.SurrealDBDatabase,
			Username:     cfg.SurrealDBUser,
			Password:     cfg.SurrealDBPass,
			AuthLevel:    cfg.SurrealDBAuthLevel,
			DefaultTitle: cfg.DefaultTitle,
		}, logger, collector)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		return &Handle{Store: client, close: client.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %s or %s)",
			cfg.StorageBackend, config.StorageSurrealDB, config.StorageMemory)
	}
}
