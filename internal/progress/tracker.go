package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
)

// Tracker is the only writer of user stats. A single mutex guards the table
// and its write-through persistence.
type Tracker struct {
	mu    sync.Mutex
	store Store
	table map[UserID]UserStats
}

// NewTracker loads the current table from store.
func NewTracker(ctx context.Context, store Store) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("progress: nil store")
	}
	start := time.Now()
	table, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress: load stats: %w", err)
	}
	if table == nil {
		table = make(map[UserID]UserStats)
	}
	logger.Info(ctx, "progress", "stats.loaded",
		slog.Int("count", len(table)),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Tracker{store: store, table: table}, nil
}

// Record applies one answered exercise and persists the table.
// When persisting fails the updated stats are still returned together with
// an error wrapping ErrDurability.
func (t *Tracker) Record(ctx context.Context, userID UserID, topic, level string, correct bool) (UserStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.table[userID].Clone()
	stats.apply(topic, level, correct)
	t.table[userID] = stats

	start := time.Now()
	if err := t.store.Save(ctx, t.table); err != nil {
		logger.Warn(ctx, "progress", "progress.durability",
			slog.Int64("user_id", userID),
			slog.Int("total", stats.Total),
			slog.Duration("save_duration", logger.Took(start)),
			logger.Err(err),
		)
		return stats.Clone(), fmt.Errorf("%w: %w", ErrDurability, err)
	}
	logger.Debug(ctx, "progress", "answer.recorded",
		slog.Int64("user_id", userID),
		slog.Int("total", stats.Total),
		slog.Int("correct", stats.Correct),
		slog.Int("streak", stats.CurrentStreak),
		slog.Duration("save_duration", logger.Took(start)),
	)
	return stats.Clone(), nil
}

// Stats returns a snapshot for userID; unknown users get zero stats.
func (t *Tracker) Stats(userID UserID) UserStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table[userID].Clone()
}

// Len reports how many users have stats.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.table)
}
