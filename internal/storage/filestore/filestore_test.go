package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/quizbot/internal/progress"
)

func sample() map[progress.UserID]progress.UserStats {
	return map[progress.UserID]progress.UserStats{
		7: {Total: 3, Correct: 2, CurrentStreak: 1, BestStreak: 2,
			Topics: progress.NewSet("Articles", "Verbs"), Levels: progress.NewSet("A1")},
		42: {Total: 1, Correct: 0, Topics: progress.NewSet("Articles"), Levels: progress.NewSet("A2")},
	}
}

func TestMissingFileLoadsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "stats.json"))
	table, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "stats.json")
	s := New(path)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sample()))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	table, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample(), table)

	require.NoError(t, s.Save(ctx, table))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestEncodeIsStable(t *testing.T) {
	a, err := Encode(sample())
	require.NoError(t, err)
	b, err := Encode(sample())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), `"topics": [
      "Articles",
      "Verbs"
    ]`)

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(empty))
}

func TestNilSetsEncodeAsEmptyArrays(t *testing.T) {
	data, err := Encode(map[progress.UserID]progress.UserStats{1: {}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"levels": []`)
}

func TestCorruptFileIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New(path)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	table, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	moved, err := os.ReadFile(path + ".corrupt-20250301T100000")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(moved))
}

func TestInvalidRecordsAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	doc := `{
  "1": {"total": 2, "correct": 5, "current_streak": 0, "best_streak": 0, "topics": [], "levels": []},
  "2": {"total": 2, "correct": 1, "current_streak": 1, "best_streak": 1, "topics": ["Verbs"], "levels": ["A2"]}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	table, err := New(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.True(t, table[2].Topics.Has("Verbs"))
}

func TestHeldRecordsSurviveOtherUsersAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	doc := `{
  "1": {"total": 40, "correct": 99, "current_streak": 0, "best_streak": 0, "topics": [], "levels": []},
  "2": {"total": 1, "correct": 1, "current_streak": 1, "best_streak": 1, "topics": ["Verbs"], "levels": ["A2"]},
  "3": {"total": "many"},
  "x": {}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	ctx := context.Background()

	tracker, err := progress.NewTracker(ctx, New(path))
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.Stats(1).Total)
	_, err = tracker.Record(ctx, 2, "Verbs", "A2", true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"correct": 99`)
	assert.Contains(t, string(data), `"total": "many"`)
	assert.Contains(t, string(data), `"x": {}`)

	table, err := New(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 2, table[2].Total)
}

func TestEmptyFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	table, err := New(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(filepath.Join(t.TempDir(), "stats.json")).Save(ctx, sample())
	require.Error(t, err)
}

func TestTrackerPersistsThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	ctx := context.Background()

	tracker, err := progress.NewTracker(ctx, New(path))
	require.NoError(t, err)
	_, err = tracker.Record(ctx, 5, "Articles", "A1", true)
	require.NoError(t, err)
	_, err = tracker.Record(ctx, 5, "Verbs", "A2", false)
	require.NoError(t, err)

	reloaded, err := progress.NewTracker(ctx, New(path))
	require.NoError(t, err)
	st := reloaded.Stats(5)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Correct)
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 1, st.BestStreak)
	assert.Equal(t, []string{"A1", "A2"}, st.Levels.Sorted())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"5\": {"))
}
