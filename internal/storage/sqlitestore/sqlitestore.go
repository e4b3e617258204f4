// Package sqlitestore keeps the progress table in an embedded SQLite database.
package sqlitestore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a progress.Store over one SQLite file.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

type row struct {
	UserID        int64  `db:"user_id"`
	Total         int    `db:"total"`
	Correct       int    `db:"correct"`
	CurrentStreak int    `db:"current_streak"`
	BestStreak    int    `db:"best_streak"`
	Topics        string `db:"topics"`
	Levels        string `db:"levels"`
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: mkdir %s: %w", dir, err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := database.RunMigrations(ctx, db.DB, database.DialectSQLite, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: %w", err)
	}
	logger.Info(ctx, "store", "store.open",
		slog.String("backend", "sqlite"),
		slog.String("path", path),
	)
	return &Store{db: db, now: time.Now}, nil
}

// Load reads every row. Rows whose sets cannot be decoded, or that fail
// validation, are left out of the table but kept in the database.
func (s *Store) Load(ctx context.Context) (map[progress.UserID]progress.UserStats, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, total, correct, current_streak, best_streak, topics, levels
		 FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load: %w", err)
	}
	table := make(map[progress.UserID]progress.UserStats, len(rows))
	for _, r := range rows {
		st, err := r.stats()
		if err != nil || !st.Valid() {
			logger.Warn(ctx, "store", "store.corrupt",
				slog.String("backend", "sqlite"),
				slog.Int64("user_id", r.UserID),
				slog.String("status", "skip"),
				logger.Err(err),
			)
			continue
		}
		table[r.UserID] = st
	}
	return table, nil
}

// Save upserts every user in table inside one transaction. Rows Load
// skipped are never deleted.
func (s *Store) Save(ctx context.Context, table map[progress.UserID]progress.UserStats) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	updated := s.now().UTC().Format(time.RFC3339Nano)
	for id, st := range table {
		var r row
		if r, err = toRow(id, st); err != nil {
			return fmt.Errorf("sqlitestore: encode user %d: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_stats (user_id, total, correct, current_streak, best_streak, topics, levels, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET
			   total = excluded.total,
			   correct = excluded.correct,
			   current_streak = excluded.current_streak,
			   best_streak = excluded.best_streak,
			   topics = excluded.topics,
			   levels = excluded.levels,
			   updated_at = excluded.updated_at`,
			r.UserID, r.Total, r.Correct, r.CurrentStreak, r.BestStreak, r.Topics, r.Levels, updated,
		)
		if err != nil {
			return fmt.Errorf("sqlitestore: upsert user %d: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toRow(id progress.UserID, st progress.UserStats) (row, error) {
	topics, err := json.Marshal(st.Topics)
	if err != nil {
		return row{}, err
	}
	levels, err := json.Marshal(st.Levels)
	if err != nil {
		return row{}, err
	}
	return row{
		UserID:        id,
		Total:         st.Total,
		Correct:       st.Correct,
		CurrentStreak: st.CurrentStreak,
		BestStreak:    st.BestStreak,
		Topics:        string(topics),
		Levels:        string(levels),
	}, nil
}

func (r row) stats() (progress.UserStats, error) {
	st := progress.UserStats{
		Total:         r.Total,
		Correct:       r.Correct,
		CurrentStreak: r.CurrentStreak,
		BestStreak:    r.BestStreak,
	}
	if err := json.Unmarshal([]byte(r.Topics), &st.Topics); err != nil {
		return st, fmt.Errorf("topics: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Levels), &st.Levels); err != nil {
		return st, fmt.Errorf("levels: %w", err)
	}
	return st, nil
}
