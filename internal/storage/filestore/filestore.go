// Package filestore keeps the progress table in a single JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
)

// Store is a progress.Store backed by one JSON document. Writes replace the
// file atomically.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	// held keeps raw records from the last Load that could not be decoded.
	held map[string]json.RawMessage
}

var errInvalidRecord = errors.New("invalid record")

// New returns a store for path. The file is created on first Save.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the table. A missing or empty file yields an empty table; a
// file that is not a JSON object is moved aside and an empty table is
// returned. Records that do not decode or fail validation are held back and
// written unchanged by later saves.
func (s *Store) Load(ctx context.Context) (map[progress.UserID]progress.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.held = nil
	table := make(map[progress.UserID]progress.UserStats)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(ctx, "store", "store.load",
			slog.String("backend", "file"),
			slog.String("path", s.path),
			slog.String("status", "skip"),
		)
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return table, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		moved := s.quarantine()
		logger.Warn(ctx, "store", "store.corrupt",
			slog.String("backend", "file"),
			slog.String("path", s.path),
			slog.String("moved_to", moved),
			logger.Err(err),
		)
		return table, nil
	}
	for field, value := range raw {
		id, st, err := decodeRecord(field, value)
		if err != nil {
			if s.held == nil {
				s.held = make(map[string]json.RawMessage)
			}
			s.held[field] = value
			logger.Warn(ctx, "store", "store.corrupt",
				slog.String("backend", "file"),
				slog.String("field", field),
				slog.String("status", "skip"),
				logger.Err(err),
			)
			continue
		}
		table[id] = st
	}
	return table, nil
}

func decodeRecord(field string, value json.RawMessage) (progress.UserID, progress.UserStats, error) {
	var st progress.UserStats
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, st, fmt.Errorf("user id %q: %w", field, err)
	}
	if err := json.Unmarshal(value, &st); err != nil {
		return 0, st, err
	}
	if !st.Valid() {
		return 0, st, errInvalidRecord
	}
	return id, st, nil
}

// quarantine renames the corrupt file so the next Save starts clean.
func (s *Store) quarantine() string {
	dst := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405"))
	if err := os.Rename(s.path, dst); err != nil {
		return ""
	}
	return dst
}

// Save writes table, plus any records held back by Load, to a temp file in
// the same directory and renames it over the target.
func (s *Store) Save(ctx context.Context, table map[progress.UserID]progress.UserStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(table, s.held)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Removing a renamed temp is a no-op.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}

// Close releases nothing; it exists so every backend closes the same way.
func (s *Store) Close() error { return nil }

// Encode renders table in the on-disk form: indented JSON with sorted keys
// and sets as sorted arrays.
func Encode(table map[progress.UserID]progress.UserStats) ([]byte, error) {
	return encode(table, nil)
}

// encode merges held raw records under table; a user present in table wins.
func encode(table map[progress.UserID]progress.UserStats, held map[string]json.RawMessage) ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(table)+len(held))
	for field, value := range held {
		doc[field] = value
	}
	for id, st := range table {
		data, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", id, err)
		}
		field := strconv.FormatInt(id, 10)
		delete(doc, field)
		doc[field] = data
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
