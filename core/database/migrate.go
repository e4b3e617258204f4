package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/quizbot/core/logger"
)

// Supported migration dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// MigrationsDir is the directory inside a migrations fs.FS holding *.sql files.
const MigrationsDir = "migrations"

// RunMigrations applies all up migrations found under MigrationsDir in src.
// The caller keeps ownership of db.
func RunMigrations(ctx context.Context, db *sql.DB, dialect string, src fs.FS) error {
	files := listMigrationFiles(src)
	logger.Debug(ctx, "db.migrate", "resolve",
		slog.String("backend", dialect),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview(files, 6)),
	)

	driver, err := instance(db, dialect)
	if err != nil {
		logger.Error(ctx, "db.migrate", "db.migrate", slog.String("backend", dialect), logger.Err(err))
		return fmt.Errorf("migrate: %s driver: %w", dialect, err)
	}
	source, err := iofs.New(src, MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrate: open source: %w", err)
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		logger.Error(ctx, "db.migrate", "db.migrate", slog.String("backend", dialect), logger.Err(err))
		return fmt.Errorf("migrate: init: %w", err)
	}

	fromVer := version(m)
	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "summary",
			slog.String("backend", dialect),
			slog.Uint64("from_ver", fromVer),
			slog.Uint64("to_ver", fromVer),
			slog.Int("files", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.Error(ctx, "db.migrate", "apply",
			slog.String("backend", dialect),
			slog.Duration("duration", logger.RoundMS(took)),
			logger.Err(upErr),
		)
		return fmt.Errorf("migrate: up: %w", upErr)
	}

	toVer := version(m)
	applied := selectApplied(files, fromVer, toVer)
	if len(applied) > 0 {
		logger.Debug(ctx, "db.migrate", "apply",
			slog.Int("files_total", len(applied)),
			slog.String("files_preview", preview(applied, 6)),
		)
	}
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("backend", dialect),
		slog.Uint64("from_ver", fromVer),
		slog.Uint64("to_ver", toVer),
		slog.Int("files", len(applied)),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

func instance(db *sql.DB, dialect string) (database.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})
	}
	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}

func version(m *migrate.Migrate) uint64 {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return uint64(v)
}

func listMigrationFiles(src fs.FS) []string {
	entries, err := fs.ReadDir(src, MigrationsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}

// preview joins up to limit names and marks the rest as truncated.
func preview(names []string, limit int) string {
	if len(names) <= limit {
		return strings.Join(names, ",")
	}
	return strings.Join(names[:limit], ",") + fmt.Sprintf(",+%d", len(names)-limit)
}
