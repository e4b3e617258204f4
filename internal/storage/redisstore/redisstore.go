// Package redisstore keeps the progress table in one Redis hash:
// field = user id, value = JSON encoded stats.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
)

const dialTimeout = 5 * time.Second

// Store is a progress.Store over a Redis hash.
type Store struct {
	client redis.UniversalClient
	key    string
}

// Open connects to the server described by cfg and checks it answers.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		logger.Error(ctx, "store", "store.open",
			slog.String("backend", "redis"),
			slog.String("addr", cfg.Addr),
			logger.Err(err),
		)
		return nil, fmt.Errorf("redisstore: ping %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "store", "store.open",
		slog.String("backend", "redis"),
		slog.String("addr", cfg.Addr),
		slog.String("key", cfg.Key),
	)
	return New(client, cfg.Key), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, key string) *Store {
	return &Store{client: client, key: key}
}

// Load reads the hash. Fields that do not decode are left out of the table
// but stay in the hash.
func (s *Store) Load(ctx context.Context) (map[progress.UserID]progress.UserStats, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: hgetall %s: %w", s.key, err)
	}
	table := make(map[progress.UserID]progress.UserStats, len(fields))
	for field, value := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		var st progress.UserStats
		if err == nil {
			err = json.Unmarshal([]byte(value), &st)
		}
		if err != nil || !st.Valid() {
			logger.Warn(ctx, "store", "store.corrupt",
				slog.String("backend", "redis"),
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

// Save writes every user in table with one HSET. Other fields, including
// ones Load skipped, are left untouched.
func (s *Store) Save(ctx context.Context, table map[progress.UserID]progress.UserStats) error {
	values := make(map[string]any, len(table))
	for id, st := range table {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("redisstore: encode user %d: %w", id, err)
		}
		values[strconv.FormatInt(id, 10)] = string(data)
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return fmt.Errorf("redisstore: save %s: %w", s.key, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
