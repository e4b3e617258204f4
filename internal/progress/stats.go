// Package progress keeps per-user quiz statistics and derives achievements from them.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

// ErrDurability wraps store failures that happened after stats were updated in memory.
var ErrDurability = errors.New("progress: stats not persisted")

// UserID is the transport supplied user identifier.
type UserID = int64

// Store persists the whole stats table.
type Store interface {
	// Load returns the persisted table. A missing or corrupt table yields an empty map.
	Load(ctx context.Context) (map[UserID]UserStats, error)
	// Save writes every user in table. Entries Load skipped as unreadable stay
	// in storage until that user is saved again. Implementations must not retain table.
	Save(ctx context.Context, table map[UserID]UserStats) error
}

// Set is a set of strings that serialises as a sorted list.
type Set map[string]struct{}

// NewSet builds a set from values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v, allocating the set when needed.
func (s *Set) Add(v string) {
	if *s == nil {
		*s = make(Set)
	}
	(*s)[v] = struct{}{}
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array into the set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}

// UserStats is the durable progress record of one user.
type UserStats struct {
	Total         int `json:"total"`
	Correct       int `json:"correct"`
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
	Topics        Set `json:"topics"`
	Levels        Set `json:"levels"`
}

// Clone returns a deep copy.
func (s UserStats) Clone() UserStats {
	s.Topics = s.Topics.Clone()
	s.Levels = s.Levels.Clone()
	return s
}

// Accuracy returns the share of correct answers in percent.
func (s UserStats) Accuracy() int {
	if s.Total == 0 {
		return 0
	}
	return s.Correct * 100 / s.Total
}

// Valid checks the record invariants.
func (s UserStats) Valid() bool {
	return s.Total >= 0 && s.Correct >= 0 && s.CurrentStreak >= 0 &&
		s.Correct <= s.Total && s.CurrentStreak <= s.BestStreak && s.BestStreak <= s.Total
}

// apply folds one answered exercise into the stats.
func (s *UserStats) apply(topic, level string, correct bool) {
	s.Total++
	if correct {
		s.Correct++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}
	s.Topics.Add(topic)
	s.Levels.Add(level)
}
