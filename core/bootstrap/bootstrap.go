// Package bootstrap initialises shared infrastructure before the bot starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
	"github.com/m3rciful/quizbot/internal/storage"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(context.Context, coreconfig.StorageConfig) (storage.Store, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store   storage.Store
	Tracker *progress.Tracker
}

// Close releases the progress store.
func (r *Result) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Run initializes the logger, opens the progress store (migrating SQL
// backends) and loads the progress table.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	open := opts.OpenStore
	if open == nil {
		open = storage.Open
	}
	store, err := open(ctx, opts.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: progress store initialization failed: %w", err)
	}

	tracker, err := progress.NewTracker(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap: progress load failed: %w", err)
	}
	logger.Info(ctx, "app", "bootstrap.done",
		slog.String("backend", opts.Config.Storage.Driver),
		slog.Int("users", tracker.Len()),
	)

	return &Result{Store: store, Tracker: tracker}, nil
}
