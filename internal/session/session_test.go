package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/progress"
)

type memoryStore struct {
	mu    sync.Mutex
	table map[progress.UserID]progress.UserStats
}

func (m *memoryStore) Load(context.Context) (map[progress.UserID]progress.UserStats, error) {
	return map[progress.UserID]progress.UserStats{}, nil
}

func (m *memoryStore) Save(_ context.Context, table map[progress.UserID]progress.UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = make(map[progress.UserID]progress.UserStats, len(table))
	for id, s := range table {
		m.table[id] = s.Clone()
	}
	return nil
}

func (m *memoryStore) get(id progress.UserID) progress.UserStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table[id]
}

const articles = `{"topic_name": "Articles", "exercises": [
  {"question": "___ zaino è pesante.", "options": ["Il", "Lo", "La"], "answer": "Lo", "explanation": "Lo goes before z."}
]}`

const verbs = `{"topic_name": "Verbs", "exercises": [
  {"question": "Io ___ italiano.", "options": ["parlo", "parli"], "answer": "parlo"},
  {"question": "Write the infinitive", "options": [], "answer": "parlare"},
  {"question": "Tu ___ inglese.", "options": ["parlo", "parli"], "answer": "parli"},
  {"question": "Lei ___ francese.", "options": ["parla", "parli"], "answer": "parla"}
]}`

const openOnly = `{"topic_name": "Open questions", "exercises": [
  {"question": "Translate 'dog'", "answer": "cane"}
]}`

type fixture struct {
	store    *memoryStore
	tracker  *progress.Tracker
	catalog  *content.Catalog
	registry *Registry
	fsys     fstest.MapFS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fsys := fstest.MapFS{
		"A1/articles.json": {Data: []byte(articles)},
		"A2/verbs.json":    {Data: []byte(verbs)},
		"A2/open.json":     {Data: []byte(openOnly)},
		"B1/broken.json":   {Data: []byte(`{"exercises": [{"question": ""}]}`)},
		"B1/garbage.yaml":  {Data: []byte("exercises: [")},
	}
	store := &memoryStore{}
	tracker, err := progress.NewTracker(context.Background(), store)
	require.NoError(t, err)
	catalog := content.New(fsys, []string{"A1", "A2", "B1", "B2"})
	registry := NewRegistry(NewMachine(catalog, tracker), Config{IdleTimeout: time.Minute})
	return &fixture{store: store, tracker: tracker, catalog: catalog, registry: registry, fsys: fsys}
}

func (f *fixture) send(t *testing.T, user progress.UserID, kind EventKind, payload string) []Instruction {
	t.Helper()
	out, err := f.registry.Dispatch(context.Background(), user, Event{Kind: kind, Payload: payload})
	require.NoError(t, err)
	return out
}

func (f *fixture) state(t *testing.T, user progress.UserID) Session {
	t.Helper()
	s, ok := f.registry.Snapshot(user)
	require.True(t, ok)
	return s
}

func labels(opts []Option) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

func last(out []Instruction) Instruction {
	return out[len(out)-1]
}

func TestScenarioCorrectAnswerCompletesTopic(t *testing.T) {
	f := newFixture(t)

	out := f.send(t, 1, EventQuizStart, "")
	require.Len(t, out, 1)
	assert.Equal(t, KeyboardInline, out[0].Keyboard)
	assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, labels(out[0].Options))
	assert.Equal(t, ActionLevel, out[0].Options[0].Action)

	out = f.send(t, 1, EventLevelChosen, "A1")
	require.Len(t, out, 1)
	assert.Equal(t, []Option{{Label: "Articles", Action: ActionTopic, Payload: "articles"}}, out[0].Options)
	assert.Equal(t, StateTopicSelect, f.state(t, 1).State)

	out = f.send(t, 1, EventTopicChosen, "articles")
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Title, "Articles")
	assert.Equal(t, KeyboardReply, out[1].Keyboard)
	assert.Equal(t, []string{"Il", "Lo", "La"}, labels(out[1].Options))
	assert.Contains(t, out[1].Text, "Exercise 1:")
	assert.Equal(t, StateInQuiz, f.state(t, 1).State)

	out = f.send(t, 1, EventAnswer, "lo")
	assert.Contains(t, out[0].Text, "Correct!")
	assert.Contains(t, out[0].Text, "Lo goes before z.")
	done := last(out)
	assert.Contains(t, done.Text, "1/1")
	assert.True(t, done.RemoveKeyboard)

	stats := f.tracker.Stats(1)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Correct)
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.True(t, stats.Topics.Has("Articles"))
	assert.True(t, stats.Levels.Has("A1"))

	s := f.state(t, 1)
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Exercises)
	assert.Equal(t, 0, s.Index)
}

func TestScenarioWrongAnswerNamesCorrectOne(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")

	out := f.send(t, 1, EventAnswer, "Il")
	assert.Contains(t, out[0].Text, "Wrong")
	assert.Contains(t, out[0].Text, "Correct answer: Lo")

	stats := f.tracker.Stats(1)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Correct)
	assert.Equal(t, 0, stats.CurrentStreak)
}

func TestScenarioCancelMidQuiz(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A2")
	f.send(t, 1, EventTopicChosen, "verbs")
	require.Equal(t, 0, f.state(t, 1).Index)

	out := f.send(t, 1, EventCancel, "")
	require.Len(t, out, 1)
	assert.True(t, out[0].RemoveKeyboard)
	assert.Equal(t, StateIdle, f.state(t, 1).State)
	assert.Equal(t, progress.UserStats{}, f.tracker.Stats(1))

	out = f.send(t, 1, EventQuizStart, "")
	assert.Equal(t, StateLevelSelect, f.state(t, 1).State)
	assert.Equal(t, KeyboardInline, last(out).Keyboard)
}

func TestScenarioLevelWithoutValidTopics(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")

	out := f.send(t, 1, EventLevelChosen, "B1")
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "No valid topics")
	assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, labels(out[0].Options))

	s := f.state(t, 1)
	assert.Equal(t, StateLevelSelect, s.State)
	assert.Empty(t, s.Level)

	out = f.send(t, 1, EventLevelChosen, "B2")
	assert.Contains(t, out[0].Text, "no exercises for level B2")
	assert.Equal(t, StateLevelSelect, f.state(t, 1).State)

	out = f.send(t, 1, EventLevelChosen, "Z9")
	assert.Contains(t, out[0].Text, "Unknown level")

	f.send(t, 1, EventLevelChosen, "A1")
	assert.Equal(t, StateTopicSelect, f.state(t, 1).State)
}

func TestScenarioConcurrentUsers(t *testing.T) {
	f := newFixture(t)
	const users = 16

	var wg sync.WaitGroup
	for u := progress.UserID(1); u <= users; u++ {
		wg.Add(1)
		go func(u progress.UserID) {
			defer wg.Done()
			ctx := context.Background()
			for _, ev := range []Event{
				{Kind: EventQuizStart},
				{Kind: EventLevelChosen, Payload: "A2"},
				{Kind: EventTopicChosen, Payload: "verbs"},
				{Kind: EventAnswer, Payload: "parlo"},
				{Kind: EventAnswer, Payload: "parlo"},
			} {
				_, err := f.registry.Dispatch(ctx, u, ev)
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	for u := progress.UserID(1); u <= users; u++ {
		s := f.state(t, u)
		assert.Equal(t, StateInQuiz, s.State, "user %d", u)
		assert.Equal(t, 3, s.Index, "user %d", u)
		stored := f.store.get(u)
		assert.Equal(t, 2, stored.Total, "user %d", u)
		assert.Equal(t, 1, stored.Correct, "user %d", u)
	}
}

func TestExercisesWithoutOptionsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A2")
	f.send(t, 1, EventTopicChosen, "verbs")

	out := f.send(t, 1, EventAnswer, "parlo")
	next := last(out)
	assert.Contains(t, next.Text, "Exercise 2:")
	assert.Contains(t, next.Text, "Tu ___ inglese.")
	assert.Equal(t, 2, f.state(t, 1).Index)

	f.send(t, 1, EventAnswer, "parli")
	out = f.send(t, 1, EventAnswer, "parla")
	assert.Contains(t, last(out).Text, "3/3")
	assert.Equal(t, 3, f.tracker.Stats(1).Total)
	assert.Equal(t, 3, f.tracker.Stats(1).Correct)
}

func TestLeadingSkippedExercisesDoNotShiftNumbering(t *testing.T) {
	f := newFixture(t)
	f.fsys["A1/mixed.json"] = &fstest.MapFile{Data: []byte(`{"topic_name": "Mixed", "exercises": [
  {"question": "Translate 'cat'", "answer": "gatto"},
  {"question": "___ gatto", "options": ["Il", "La"], "answer": "Il"},
  {"question": "Translate 'dog'", "answer": "cane"}
]}`)}
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")

	out := f.send(t, 1, EventTopicChosen, "mixed")
	first := last(out)
	assert.Equal(t, "🔢 Exercise 1:\n___ gatto", first.Text)
	assert.Equal(t, 1, f.state(t, 1).Index)

	out = f.send(t, 1, EventAnswer, "il")
	assert.Contains(t, last(out).Text, "1/1")
	assert.Equal(t, StateIdle, f.state(t, 1).State)
}

func TestTopicWithOnlyOpenQuestionsIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A2")

	out := f.send(t, 1, EventTopicChosen, "open")
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "no exercises")
	assert.Equal(t, []string{"Open questions", "Verbs"}, labels(out[0].Options))
	assert.Equal(t, StateTopicSelect, f.state(t, 1).State)

	out = f.send(t, 1, EventTopicChosen, "gone")
	assert.Contains(t, out[0].Text, "not found")
	assert.Equal(t, StateTopicSelect, f.state(t, 1).State)
}

func TestSnapshotSurvivesCatalogEdits(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")

	f.fsys["A1/articles.json"] = &fstest.MapFile{Data: []byte(`{"exercises": [{"question": "changed", "options": ["x"], "answer": "x"}]}`)}

	out := f.send(t, 1, EventAnswer, "Lo")
	assert.Contains(t, out[0].Text, "Correct!")
}

func TestAnswerOutsideQuizIsExpired(t *testing.T) {
	f := newFixture(t)
	out, err := f.registry.Dispatch(context.Background(), 1, Event{Kind: EventAnswer, Payload: "Lo"})
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "/quiz")
	assert.Equal(t, progress.UserStats{}, f.tracker.Stats(1))
}

func TestStaleCallbacksAreExpired(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")

	out, err := f.registry.Dispatch(context.Background(), 1, Event{Kind: EventLevelChosen, Payload: "A2"})
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, out[0].RemoveKeyboard, "answer keyboard stays while in quiz")

	s := f.state(t, 1)
	assert.Equal(t, StateInQuiz, s.State)
	assert.Equal(t, "A1", s.Level)

	_, err = f.registry.Dispatch(context.Background(), 2, Event{Kind: EventTopicChosen, Payload: "articles"})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestQuizStartMidQuizDiscardsAttempt(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A2")
	f.send(t, 1, EventTopicChosen, "verbs")
	f.send(t, 1, EventAnswer, "parlo")
	before := f.state(t, 1).ID

	out := f.send(t, 1, EventQuizStart, "")
	require.Len(t, out, 2)
	assert.True(t, out[0].RemoveKeyboard)
	assert.Equal(t, KeyboardInline, out[1].Keyboard)

	s := f.state(t, 1)
	assert.Equal(t, StateLevelSelect, s.State)
	assert.Empty(t, s.Exercises)
	assert.NotEqual(t, before, s.ID)
	assert.Equal(t, 1, f.tracker.Stats(1).Total)
}

func TestQueriesDoNotChangeState(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")

	for _, kind := range []EventKind{EventStart, EventStatsQuery, EventAchievementsQuery} {
		out := f.send(t, 1, kind, "")
		require.Len(t, out, 1)
		assert.Equal(t, StateInQuiz, f.state(t, 1).State, string(kind))
	}

	f.send(t, 1, EventAnswer, "lo")
	out := f.send(t, 1, EventStatsQuery, "")
	assert.Contains(t, out[0].Text, "Answered: 1")
	assert.Contains(t, out[0].Text, "Correct: 1 (100%)")

	out = f.send(t, 1, EventAchievementsQuery, "")
	assert.Contains(t, out[0].Title, fmt.Sprintf("1/%d", len(progress.Catalogue())))
	assert.Contains(t, out[0].Text, "✅ First steps")
}

func TestNewAchievementIsAnnounced(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")

	out := f.send(t, 1, EventAnswer, "Lo")
	require.Len(t, out, 3)
	assert.Contains(t, out[1].Text, "First steps")
}

func TestUnknownEventKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Dispatch(context.Background(), 1, Event{Kind: "dance"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	f := newFixture(t)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	f.registry.now = func() time.Time { return clock }

	f.send(t, 1, EventQuizStart, "")
	f.send(t, 1, EventLevelChosen, "A1")
	f.send(t, 1, EventTopicChosen, "articles")
	clock = clock.Add(50 * time.Second)
	f.send(t, 2, EventQuizStart, "")
	require.Equal(t, 2, f.registry.Len())

	assert.Equal(t, 0, f.registry.Sweep(context.Background(), clock))
	assert.Equal(t, 1, f.registry.Sweep(context.Background(), clock.Add(20*time.Second)))
	assert.Equal(t, 1, f.registry.Len())
	_, ok := f.registry.Snapshot(1)
	assert.False(t, ok)

	_, err := f.registry.Dispatch(context.Background(), 1, Event{Kind: EventAnswer, Payload: "Lo"})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateIdle, f.state(t, 1).State)
}

func TestSweepRacesWithDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := progress.UserID(1); u <= 8; u++ {
		wg.Add(1)
		go func(u progress.UserID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = f.registry.Dispatch(ctx, u, Event{Kind: EventQuizStart})
				_, _ = f.registry.Dispatch(ctx, u, Event{Kind: EventLevelChosen, Payload: "A1"})
			}
		}(u)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			f.registry.Sweep(ctx, time.Now().Add(time.Hour))
		}
	}()
	wg.Wait()

	for u := progress.UserID(1); u <= 8; u++ {
		if s, ok := f.registry.Snapshot(u); ok {
			assert.Contains(t, []State{StateLevelSelect, StateTopicSelect, StateIdle}, s.State)
		}
	}
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	f.registry.cfg.SweepInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.registry.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
