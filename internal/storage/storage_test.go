package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/internal/storage/filestore"
	"github.com/m3rciful/quizbot/internal/storage/sqlitestore"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, config.StorageConfig{Driver: config.StorageFile, Path: filepath.Join(dir, "stats.json")})
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(dir, "quizbot.db")})
	require.NoError(t, err)
	assert.IsType(t, &sqlitestore.Store{}, s)
	require.NoError(t, s.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
