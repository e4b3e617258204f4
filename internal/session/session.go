// Package session drives one quiz conversation per user: level choice,
// topic choice, then a run of exercises. The Machine turns one event into
// the next session state plus presentation instructions; the Registry owns
// all sessions and serialises events per user.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/progress"
)

// ErrSessionExpired reports an interaction that no longer matches the session state.
var ErrSessionExpired = errors.New("session: expired")

// State is a step of the quiz conversation.
type State string

const (
	StateIdle        State = "idle"
	StateLevelSelect State = "level_select"
	StateTopicSelect State = "topic_select"
	StateInQuiz      State = "in_quiz"
)

// EventKind classifies inbound user events.
type EventKind string

const (
	EventStart             EventKind = "start"
	EventQuizStart         EventKind = "quiz_start"
	EventLevelChosen       EventKind = "level_chosen"
	EventTopicChosen       EventKind = "topic_chosen"
	EventAnswer            EventKind = "answer"
	EventCancel            EventKind = "cancel"
	EventStatsQuery        EventKind = "stats_query"
	EventAchievementsQuery EventKind = "achievements_query"
)

// Event is one inbound user action. Payload carries the level id, topic key
// or answer text depending on Kind.
type Event struct {
	Kind    EventKind
	Payload string
}

// Callback actions carried by inline options.
const (
	ActionLevel = "level"
	ActionTopic = "topic"
)

// Keyboard tells the transport how to present Options.
type Keyboard int

const (
	// KeyboardNone shows text only.
	KeyboardNone Keyboard = iota
	// KeyboardInline shows buttons that send Action and Payload back as a callback.
	KeyboardInline
	// KeyboardReply shows buttons whose press sends the label as text.
	KeyboardReply
)

// Option is one labelled choice.
type Option struct {
	Label   string
	Action  string
	Payload string
}

// Instruction is one outbound message.
type Instruction struct {
	// Title is rendered emphasised above Text when set.
	Title    string
	Text     string
	Options  []Option
	Keyboard Keyboard
	// RemoveKeyboard hides a reply keyboard left by a previous exercise.
	RemoveKeyboard bool
}

// Session is the conversation state of one user.
type Session struct {
	UserID progress.UserID
	// ID correlates log lines of one quiz attempt.
	ID        string
	State     State
	Level     string
	TopicKey  string
	TopicName string
	// Exercises is a private copy taken at topic selection.
	Exercises []content.Exercise
	Index     int
	Answered  int
	Correct   int

	CreatedAt    time.Time
	LastActivity time.Time
}

func newSession(userID progress.UserID, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		ID:           uuid.NewString(),
		State:        StateIdle,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// reset drops the level, topic and exercise run.
func (s *Session) reset() {
	s.State = StateIdle
	s.Level = ""
	s.TopicKey = ""
	s.TopicName = ""
	s.Exercises = nil
	s.Index = 0
	s.Answered = 0
	s.Correct = 0
}

// Current returns the exercise at Index, if any.
func (s *Session) Current() (content.Exercise, bool) {
	if s.Index < 0 || s.Index >= len(s.Exercises) {
		return content.Exercise{}, false
	}
	return s.Exercises[s.Index], true
}

// skipUnplayable advances Index past exercises without options.
func (s *Session) skipUnplayable() int {
	skipped := 0
	for s.Index < len(s.Exercises) && !s.Exercises[s.Index].Playable() {
		s.Index++
		skipped++
	}
	return skipped
}
