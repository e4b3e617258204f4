package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/progress"
	"github.com/m3rciful/quizbot/internal/quiz"
)

// Catalog is the content the machine reads.
type Catalog interface {
	Levels() []string
	ListTopics(ctx context.Context, level string) ([]content.TopicRef, error)
	LoadTopic(ctx context.Context, level, key string) (content.Topic, error)
}

// Tracker records answers and reports stats.
type Tracker interface {
	Record(ctx context.Context, userID progress.UserID, topic, level string, correct bool) (progress.UserStats, error)
	Stats(userID progress.UserID) progress.UserStats
}

// Machine applies events to sessions. It holds no per-user state and is
// safe for concurrent use on distinct sessions.
type Machine struct {
	catalog  Catalog
	tracker  Tracker
	evaluate func(submitted, expected string) bool
}

// NewMachine wires the machine to its collaborators.
func NewMachine(catalog Catalog, tracker Tracker) *Machine {
	return &Machine{catalog: catalog, tracker: tracker, evaluate: quiz.IsCorrect}
}

// Handle applies ev to s and returns the messages to show, in order.
// ErrSessionExpired comes back together with a message telling the user to restart.
func (m *Machine) Handle(ctx context.Context, s *Session, ev Event) ([]Instruction, error) {
	switch ev.Kind {
	case EventStart:
		return []Instruction{greeting()}, nil
	case EventQuizStart:
		return m.startQuiz(ctx, s), nil
	case EventCancel:
		return m.cancel(ctx, s), nil
	case EventStatsQuery:
		return []Instruction{statsReport(m.tracker.Stats(s.UserID))}, nil
	case EventAchievementsQuery:
		return []Instruction{achievementsReport(m.tracker.Stats(s.UserID))}, nil
	case EventLevelChosen:
		if s.State != StateLevelSelect {
			return expired(ctx, s, ev)
		}
		return m.chooseLevel(ctx, s, ev.Payload), nil
	case EventTopicChosen:
		if s.State != StateTopicSelect {
			return expired(ctx, s, ev)
		}
		return m.chooseTopic(ctx, s, ev.Payload), nil
	case EventAnswer:
		if s.State != StateInQuiz {
			return expired(ctx, s, ev)
		}
		return m.answer(ctx, s, ev.Payload), nil
	}
	return nil, fmt.Errorf("session: unknown event kind %q", ev.Kind)
}

func (m *Machine) startQuiz(ctx context.Context, s *Session) []Instruction {
	var out []Instruction
	if s.State == StateInQuiz {
		logger.Info(ctx, "session", "quiz.abandoned",
			slog.String("topic", s.TopicKey),
			slog.Int("index", s.Index),
			slog.Int("exercises", len(s.Exercises)),
		)
		out = append(out, Instruction{Text: msgQuizRestarted, RemoveKeyboard: true})
	}
	s.reset()
	s.ID = uuid.NewString()
	s.State = StateLevelSelect
	return append(out, m.levelPrompt(msgChooseLevel))
}

func (m *Machine) cancel(ctx context.Context, s *Session) []Instruction {
	if s.State == StateIdle {
		return []Instruction{{Text: msgNothingToCancel, RemoveKeyboard: true}}
	}
	logger.Info(ctx, "session", "quiz.cancelled",
		slog.String("state", string(s.State)),
		slog.Int("index", s.Index),
	)
	s.reset()
	return []Instruction{{Text: msgCancelled, RemoveKeyboard: true}}
}

func (m *Machine) chooseLevel(ctx context.Context, s *Session, level string) []Instruction {
	if !slices.Contains(m.catalog.Levels(), level) {
		return []Instruction{m.levelPrompt(fmt.Sprintf(msgUnknownLevel, level))}
	}
	topics, err := m.catalog.ListTopics(ctx, level)
	if err != nil {
		logger.Info(ctx, "session", "level.unavailable",
			slog.String("level_id", level),
			logger.Err(err),
		)
		return []Instruction{m.levelPrompt(levelError(level, err))}
	}
	s.Level = level
	s.State = StateTopicSelect
	return []Instruction{topicPrompt(fmt.Sprintf(msgLevelChosen, level), msgChooseTopic, topics)}
}

func (m *Machine) chooseTopic(ctx context.Context, s *Session, key string) []Instruction {
	topic, err := m.catalog.LoadTopic(ctx, s.Level, key)
	if err == nil && topic.Playable() == 0 {
		err = errNoExercises
	}
	if err != nil {
		logger.Info(ctx, "session", "topic.unavailable",
			slog.String("level_id", s.Level),
			slog.String("topic", key),
			logger.Err(err),
		)
		return m.topicRetry(ctx, s, topicError(err))
	}

	s.TopicKey = key
	s.TopicName = topic.Name
	s.Exercises = topic.CloneExercises()
	s.Index = 0
	s.Answered, s.Correct = 0, 0
	s.skipUnplayable()
	s.State = StateInQuiz
	logger.Info(ctx, "session", "quiz.started",
		slog.String("level_id", s.Level),
		slog.String("topic", s.TopicKey),
		slog.Int("exercises", len(s.Exercises)),
	)
	return []Instruction{
		{Title: fmt.Sprintf(msgTopicChosen, s.TopicName), Text: msgLetsGo},
		exercisePrompt(s),
	}
}

// topicRetry keeps the user in topic selection and lists the topics again.
func (m *Machine) topicRetry(ctx context.Context, s *Session, text string) []Instruction {
	level := s.Level
	topics, err := m.catalog.ListTopics(ctx, level)
	if err != nil {
		s.Level = ""
		s.State = StateLevelSelect
		return []Instruction{m.levelPrompt(text + "\n" + levelError(level, err))}
	}
	return []Instruction{topicPrompt("", text, topics)}
}

func (m *Machine) answer(ctx context.Context, s *Session, text string) []Instruction {
	ex, ok := s.Current()
	if !ok {
		s.reset()
		return []Instruction{{Text: msgExpired, RemoveKeyboard: true}}
	}
	correct := m.evaluate(text, ex.Answer)
	before := m.tracker.Stats(s.UserID)
	after, err := m.tracker.Record(ctx, s.UserID, s.TopicName, s.Level, correct)
	if err != nil && !errors.Is(err, progress.ErrDurability) {
		logger.Error(ctx, "session", "answer.record_failed", logger.Err(err))
	}
	s.Answered++
	if correct {
		s.Correct++
	}
	outcome := "wrong"
	if correct {
		outcome = "correct"
	}
	logger.Debug(ctx, "session", "answer.checked",
		slog.String("topic", s.TopicKey),
		slog.Int("index", s.Index),
		slog.String("outcome", outcome),
	)

	out := []Instruction{feedback(ex, correct)}
	for _, id := range progress.NewlyUnlocked(before, after) {
		if a, ok := progress.Lookup(id); ok {
			out = append(out, Instruction{Text: fmt.Sprintf(msgUnlocked, a.Title, a.Description)})
		}
	}

	s.Index++
	s.skipUnplayable()
	if s.Index < len(s.Exercises) {
		return append(out, exercisePrompt(s))
	}

	logger.Info(ctx, "session", "quiz.completed",
		slog.String("level_id", s.Level),
		slog.String("topic", s.TopicKey),
		slog.Int("total", s.Answered),
		slog.Int("correct", s.Correct),
	)
	out = append(out, Instruction{
		Text:           fmt.Sprintf(msgCompleted, s.Correct, s.Answered),
		RemoveKeyboard: true,
	})
	s.reset()
	return out
}

func (m *Machine) levelPrompt(text string) Instruction {
	levels := m.catalog.Levels()
	opts := make([]Option, 0, len(levels))
	for _, lvl := range levels {
		opts = append(opts, Option{Label: lvl, Action: ActionLevel, Payload: lvl})
	}
	return Instruction{Text: text, Options: opts, Keyboard: KeyboardInline}
}

func topicPrompt(title, text string, topics []content.TopicRef) Instruction {
	opts := make([]Option, 0, len(topics))
	for _, t := range topics {
		opts = append(opts, Option{Label: t.Name, Action: ActionTopic, Payload: t.Key})
	}
	return Instruction{Title: title, Text: text, Options: opts, Keyboard: KeyboardInline}
}

// exercisePrompt numbers exercises in the order they are shown, so skipped
// ones leave no gap.
func exercisePrompt(s *Session) Instruction {
	ex, _ := s.Current()
	opts := make([]Option, 0, len(ex.Options))
	for _, o := range ex.Options {
		opts = append(opts, Option{Label: o})
	}
	return Instruction{
		Text:     fmt.Sprintf(msgExercise, s.Answered+1, ex.Question),
		Options:  opts,
		Keyboard: KeyboardReply,
	}
}

func expired(ctx context.Context, s *Session, ev Event) ([]Instruction, error) {
	logger.Info(ctx, "session", "event.stale",
		slog.String("state", string(s.State)),
		slog.String("kind", string(ev.Kind)),
		slog.String("status", "expired"),
	)
	// A stale button pressed mid-quiz must not hide the answer keyboard.
	return []Instruction{{Text: msgExpired, RemoveKeyboard: s.State != StateInQuiz}}, ErrSessionExpired
}
