package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/progress"
)

var errNoExercises = errors.New("session: topic has no playable exercises")

const (
	msgGreeting = "👋 Hi! I'm a language quiz trainer.\n" +
		"Send /quiz to pick a level and a topic, then answer with the buttons.\n" +
		"/stats shows your progress, /achievements your badges, /cancel stops a quiz."
	msgChooseLevel     = "Choose a level:"
	msgQuizRestarted   = "The previous quiz was discarded."
	msgNothingToCancel = "Nothing to cancel. Send /quiz to start."
	msgCancelled       = "❌ Quiz cancelled. Send /quiz to start again."
	msgUnknownLevel    = "❌ Unknown level %q. Choose a level:"
	msgLevelChosen     = "Level %s selected."
	msgChooseTopic     = "Choose a topic:"
	msgTopicChosen     = "Topic %s selected."
	msgLetsGo          = "Let's go!"
	msgExercise        = "🔢 Exercise %d:\n%s"
	msgCorrect         = "✅ Correct!"
	msgWrong           = "❌ Wrong.\nCorrect answer: %s"
	msgUnlocked        = "🏅 New achievement: %s (%s)"
	msgCompleted       = "🎉 All exercises done! Score: %d/%d.\nSend /quiz to start again."
	msgExpired         = "⌛ This quiz session has expired. Send /quiz to start again."
)

func greeting() Instruction {
	return Instruction{Text: msgGreeting}
}

func levelError(level string, err error) string {
	switch {
	case errors.Is(err, content.ErrNoValidTopics):
		return fmt.Sprintf("❌ No valid topics found for level %s. Choose another level:", level)
	case errors.Is(err, content.ErrNotFound):
		return fmt.Sprintf("❌ There are no exercises for level %s yet. Choose another level:", level)
	default:
		return fmt.Sprintf("❌ Could not read the topics of level %s. Choose another level:", level)
	}
}

func topicError(err error) string {
	switch {
	case errors.Is(err, errNoExercises):
		return "❌ This topic has no exercises. Choose another topic:"
	case errors.Is(err, content.ErrNotFound):
		return "❌ Topic not found. Choose another topic:"
	default:
		return "❌ Could not load the exercises of this topic. Choose another topic:"
	}
}

func feedback(ex content.Exercise, correct bool) Instruction {
	text := msgCorrect
	if !correct {
		text = fmt.Sprintf(msgWrong, ex.Answer)
	}
	if exp := strings.TrimSpace(ex.Explanation); exp != "" {
		text += "\n" + exp
	}
	return Instruction{Text: text}
}

func statsReport(s progress.UserStats) Instruction {
	if s.Total == 0 {
		return Instruction{Title: "📊 Your progress", Text: "No answers yet. Send /quiz to start."}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Answered: %d\n", s.Total)
	fmt.Fprintf(&b, "Correct: %d (%d%%)\n", s.Correct, s.Accuracy())
	fmt.Fprintf(&b, "Current streak: %d\n", s.CurrentStreak)
	fmt.Fprintf(&b, "Best streak: %d\n", s.BestStreak)
	fmt.Fprintf(&b, "Levels: %s\n", strings.Join(s.Levels.Sorted(), ", "))
	fmt.Fprintf(&b, "Topics: %d", len(s.Topics))
	return Instruction{Title: "📊 Your progress", Text: b.String()}
}

func achievementsReport(s progress.UserStats) Instruction {
	unlocked := make(map[progress.AchievementID]bool)
	for _, id := range progress.AchievementsFor(s) {
		unlocked[id] = true
	}
	all := progress.Catalogue()
	lines := make([]string, 0, len(all))
	for _, a := range all {
		mark := "▫️"
		if unlocked[a.ID] {
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", mark, a.Title, a.Description))
	}
	return Instruction{
		Title: fmt.Sprintf("🏆 Achievements %d/%d", len(unlocked), len(all)),
		Text:  strings.Join(lines, "\n"),
	}
}
