// Package content reads quiz topics from a directory tree laid out as
// <root>/<level>/<topic>.{json,yaml,yml}.
//
// Nothing is cached: every call reads the files again so content can be
// edited while the bot runs. Callers that need a stable view copy what
// they loaded.
package content

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound reports a level or topic with no content behind it.
	ErrNotFound = errors.New("content: not found")
	// ErrCorrupt reports a topic file that cannot be parsed or fails validation.
	ErrCorrupt = errors.New("content: corrupt topic")
	// ErrNoValidTopics reports a level whose topic files are all unusable.
	ErrNoValidTopics = errors.New("content: no valid topics")
)

// MaxKeyLen bounds topic keys so they fit into a Telegram callback payload.
const MaxKeyLen = 48

// Exercise is a single question with its expected answer.
type Exercise struct {
	Question    string   `json:"question" yaml:"question"`
	Options     []string `json:"options" yaml:"options"`
	Answer      string   `json:"answer" yaml:"answer"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Playable reports whether the exercise can be presented as a choice.
func (e Exercise) Playable() bool {
	return len(e.Options) > 0
}

func (e Exercise) validate() error {
	if strings.TrimSpace(e.Question) == "" {
		return errors.New("question is required")
	}
	if strings.TrimSpace(e.Answer) == "" {
		return errors.New("answer is required")
	}
	return nil
}

// TopicRef names a topic inside a level.
type TopicRef struct {
	Key  string
	Name string
}

// Topic is a named, ordered list of exercises.
type Topic struct {
	Level     string
	Key       string
	Name      string
	Exercises []Exercise
}

// Playable counts exercises that have options to choose from.
func (t Topic) Playable() int {
	n := 0
	for _, ex := range t.Exercises {
		if ex.Playable() {
			n++
		}
	}
	return n
}

// CloneExercises returns a deep copy of the exercise list.
func (t Topic) CloneExercises() []Exercise {
	out := make([]Exercise, len(t.Exercises))
	for i, ex := range t.Exercises {
		ex.Options = append([]string(nil), ex.Options...)
		out[i] = ex
	}
	return out
}

type topicFile struct {
	TopicName string     `json:"topic_name" yaml:"topic_name"`
	Exercises []Exercise `json:"exercises" yaml:"exercises"`
}
