// Package pgstore keeps the progress table in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
)

//go:embed migrations/*.sql
var migrations embed.FS

// readyTimeout bounds how long Open waits for the server at startup.
const readyTimeout = 30 * time.Second

// Store is a progress.Store over the user_stats table.
type Store struct {
	db *sqlx.DB
}

type row struct {
	UserID        int64          `db:"user_id"`
	Total         int            `db:"total"`
	Correct       int            `db:"correct"`
	CurrentStreak int            `db:"current_streak"`
	BestStreak    int            `db:"best_streak"`
	Topics        pq.StringArray `db:"topics"`
	Levels        pq.StringArray `db:"levels"`
}

// Open connects to the server described by cfg and applies migrations.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := database.Connect(ctx, cfg, readyTimeout)
	if err != nil {
		return nil, fmt.Errorf("pgstore: %w", err)
	}
	if err := Migrate(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// Migrate applies the embedded migrations over a dedicated connection;
// the migration driver pins a connection until it is closed.
func Migrate(ctx context.Context, cfg config.PostgresConfig) error {
	mdb, err := sqlx.Open("postgres", database.DSN(cfg))
	if err != nil {
		return fmt.Errorf("pgstore: open migration connection: %w", err)
	}
	defer mdb.Close()
	if err := database.RunMigrations(ctx, mdb.DB, database.DialectPostgres, migrations); err != nil {
		return fmt.Errorf("pgstore: %w", err)
	}
	return nil
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Load reads every row. Rows that fail validation are left out of the
// table but kept in the database.
func (s *Store) Load(ctx context.Context) (map[progress.UserID]progress.UserStats, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, total, correct, current_streak, best_streak, topics, levels
		 FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	table := make(map[progress.UserID]progress.UserStats, len(rows))
	for _, r := range rows {
		st := progress.UserStats{
			Total:         r.Total,
			Correct:       r.Correct,
			CurrentStreak: r.CurrentStreak,
			BestStreak:    r.BestStreak,
			Topics:        progress.NewSet(r.Topics...),
			Levels:        progress.NewSet(r.Levels...),
		}
		if !st.Valid() {
			logger.Warn(ctx, "store", "store.corrupt",
				slog.String("backend", "postgres"),
				slog.Int64("user_id", r.UserID),
				slog.String("status", "skip"),
			)
			continue
		}
		table[r.UserID] = st
	}
	return table, nil
}

// Save upserts every user in table inside one transaction. Rows for users
// not in table, including rows Load skipped, are left untouched.
func (s *Store) Save(ctx context.Context, table map[progress.UserID]progress.UserStats) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ids := make([]int64, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		st := table[id]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_stats (user_id, total, correct, current_streak, best_streak, topics, levels, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (user_id) DO UPDATE SET
				total = EXCLUDED.total,
				correct = EXCLUDED.correct,
				current_streak = EXCLUDED.current_streak,
				best_streak = EXCLUDED.best_streak,
				topics = EXCLUDED.topics,
				levels = EXCLUDED.levels,
				updated_at = EXCLUDED.updated_at
			WHERE (user_stats.total, user_stats.correct, user_stats.current_streak, user_stats.best_streak,
			       user_stats.topics, user_stats.levels)
			   IS DISTINCT FROM
			      (EXCLUDED.total, EXCLUDED.correct, EXCLUDED.current_streak, EXCLUDED.best_streak,
			       EXCLUDED.topics, EXCLUDED.levels)`,
			id, st.Total, st.Correct, st.CurrentStreak, st.BestStreak,
			pq.Array(st.Topics.Sorted()), pq.Array(st.Levels.Sorted()),
		)
		if err != nil {
			return fmt.Errorf("pgstore: upsert user %d: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}
