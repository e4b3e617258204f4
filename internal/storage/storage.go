// Package storage opens the configured progress store backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
	"github.com/m3rciful/quizbot/internal/storage/filestore"
	"github.com/m3rciful/quizbot/internal/storage/pgstore"
	"github.com/m3rciful/quizbot/internal/storage/redisstore"
	"github.com/m3rciful/quizbot/internal/storage/sqlitestore"
)

// Store is a progress store that holds resources.
type Store interface {
	progress.Store
	Close() error
}

// Open returns the backend selected by cfg.Driver. Failing to reach the
// backend is an error; an empty or corrupt table is not.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	start := time.Now()
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.StorageFile, "":
		s = filestore.New(cfg.Path)
	case config.StorageSQLite:
		s, err = sqlitestore.Open(ctx, cfg.Path)
	case config.StoragePostgres:
		s, err = pgstore.Open(ctx, cfg.Postgres)
	case config.StorageRedis:
		s, err = redisstore.Open(ctx, cfg.Redis)
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	logger.Info(ctx, "store", "store.ready",
		slog.String("backend", cfg.Driver),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return s, nil
}
