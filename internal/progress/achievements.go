package progress

// AchievementID identifies a badge.
type AchievementID string

// Achievement describes a badge and the threshold that unlocks it.
type Achievement struct {
	ID          AchievementID
	Title       string
	Description string
	unlocked    func(UserStats) bool
}

// Achievement identifiers.
const (
	FirstAnswer  AchievementID = "first_answer"
	Exercises10  AchievementID = "exercises_10"
	Exercises50  AchievementID = "exercises_50"
	Exercises100 AchievementID = "exercises_100"
	Streak5      AchievementID = "streak_5"
	Streak10     AchievementID = "streak_10"
	Streak25     AchievementID = "streak_25"
	Levels3      AchievementID = "levels_3"
	Topics5      AchievementID = "topics_5"
	Accuracy90   AchievementID = "accuracy_90"
)

// minAccuracyAnswers is the sample size required before accuracy counts.
const minAccuracyAnswers = 20

func answered(n int) func(UserStats) bool {
	return func(s UserStats) bool { return s.Total >= n }
}

func streak(n int) func(UserStats) bool {
	return func(s UserStats) bool { return s.BestStreak >= n }
}

var catalogue = []Achievement{
	{ID: FirstAnswer, Title: "First steps", Description: "Answer your first exercise", unlocked: answered(1)},
	{ID: Exercises10, Title: "Warming up", Description: "Answer 10 exercises", unlocked: answered(10)},
	{ID: Exercises50, Title: "Dedicated", Description: "Answer 50 exercises", unlocked: answered(50)},
	{ID: Exercises100, Title: "Centurion", Description: "Answer 100 exercises", unlocked: answered(100)},
	{ID: Streak5, Title: "On a roll", Description: "Get 5 answers right in a row", unlocked: streak(5)},
	{ID: Streak10, Title: "Unstoppable", Description: "Get 10 answers right in a row", unlocked: streak(10)},
	{ID: Streak25, Title: "Flawless", Description: "Get 25 answers right in a row", unlocked: streak(25)},
	{ID: Levels3, Title: "Explorer", Description: "Practice on 3 different levels", unlocked: func(s UserStats) bool { return len(s.Levels) >= 3 }},
	{ID: Topics5, Title: "Well rounded", Description: "Practice 5 different topics", unlocked: func(s UserStats) bool { return len(s.Topics) >= 5 }},
	{ID: Accuracy90, Title: "Sharpshooter", Description: "Keep 90% accuracy over at least 20 answers", unlocked: func(s UserStats) bool {
		return s.Total >= minAccuracyAnswers && s.Correct*10 >= s.Total*9
	}},
}

// Catalogue lists every achievement in display order.
func Catalogue() []Achievement {
	return append([]Achievement(nil), catalogue...)
}

// Lookup returns the achievement with id.
func Lookup(id AchievementID) (Achievement, bool) {
	for _, a := range catalogue {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// AchievementsFor derives the unlocked achievements from stats, in catalogue order.
func AchievementsFor(stats UserStats) []AchievementID {
	var ids []AchievementID
	for _, a := range catalogue {
		if a.unlocked(stats) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// NewlyUnlocked returns achievements held in after but not in before.
func NewlyUnlocked(before, after UserStats) []AchievementID {
	var ids []AchievementID
	for _, a := range catalogue {
		if a.unlocked(after) && !a.unlocked(before) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
