package content

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlesJSON = `{
  "topic_name": "Articles",
  "exercises": [
    {"question": "___ zaino è pesante.", "options": ["Il", "Lo", "La"], "answer": "Lo", "explanation": "Lo before z."}
  ]
}`

const pronounsYAML = `
topic_name: Pronouns
exercises:
  - question: "___ sono stanco."
    options: [Io, Tu]
    answer: Io
  - question: "Free text"
    answer: "ciao"
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"A1/articles.json": {Data: []byte(articlesJSON)},
		"A1/pronouns.yaml": {Data: []byte(pronounsYAML)},
		"A1/broken.json":   {Data: []byte(`{"topic_name": `)},
		"A1/noanswer.yml":  {Data: []byte("exercises:\n  - question: q\n    options: [a]\n")},
		"A1/README.md":     {Data: []byte("ignored")},
		"A1/untitled.json": {Data: []byte(`{"exercises": []}`)},
		"B1/bad.json":      {Data: []byte(`not json`)},
		"B1/empty.yaml":    {Data: []byte("exercises:\n  - options: [x]\n")},
		"B2/notes.txt":     {Data: []byte("no topics here")},
		"A1/articles.yaml": {Data: []byte(pronounsYAML)},
		"A1/.hidden.json":  {Data: []byte(articlesJSON)},
		"A2/nested/x.json": {Data: []byte(articlesJSON)},
		"C1/articles.json": {Data: []byte(articlesJSON)},
	}
}

func TestListTopicsSkipsMalformedEntries(t *testing.T) {
	cat := New(testFS(), []string{"A1", "A2", "B1", "B2"})

	refs, err := cat.ListTopics(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, []TopicRef{
		{Key: "articles", Name: "Articles"},
		{Key: "pronouns", Name: "Pronouns"},
		{Key: "untitled", Name: "untitled"},
	}, refs)
}

func TestListTopicsErrors(t *testing.T) {
	cat := New(testFS(), []string{"A1", "A2", "B1", "B2"})
	ctx := context.Background()

	_, err := cat.ListTopics(ctx, "B1")
	assert.ErrorIs(t, err, ErrNoValidTopics)

	_, err = cat.ListTopics(ctx, "B2")
	assert.ErrorIs(t, err, ErrNotFound, "directory without topic files")

	_, err = cat.ListTopics(ctx, "A2")
	assert.ErrorIs(t, err, ErrNotFound, "only nested directories")

	_, err = cat.ListTopics(ctx, "C1")
	assert.ErrorIs(t, err, ErrNotFound, "level outside the configured set")
}

func TestLoadTopic(t *testing.T) {
	cat := New(testFS(), []string{"A1", "B1"})
	ctx := context.Background()

	topic, err := cat.LoadTopic(ctx, "A1", "articles")
	require.NoError(t, err)
	assert.Equal(t, "Articles", topic.Name)
	assert.Equal(t, "A1", topic.Level)
	require.Len(t, topic.Exercises, 1)
	assert.Equal(t, []string{"Il", "Lo", "La"}, topic.Exercises[0].Options)
	assert.Equal(t, "Lo before z.", topic.Exercises[0].Explanation)

	topic, err = cat.LoadTopic(ctx, "A1", "pronouns")
	require.NoError(t, err)
	assert.Len(t, topic.Exercises, 2)
	assert.Equal(t, 1, topic.Playable())

	_, err = cat.LoadTopic(ctx, "A1", "broken")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = cat.LoadTopic(ctx, "A1", "noanswer")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = cat.LoadTopic(ctx, "A1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cat.LoadTopic(ctx, "A1", "../B1/bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneExercisesIsDeep(t *testing.T) {
	topic := Topic{Exercises: []Exercise{{Question: "q", Options: []string{"a", "b"}, Answer: "a"}}}
	clone := topic.CloneExercises()
	clone[0].Options[0] = "changed"
	assert.Equal(t, "a", topic.Exercises[0].Options[0])
}

func TestInspectReportsEveryLevel(t *testing.T) {
	cat := New(testFS(), []string{"A1", "B1"})
	reports := cat.Inspect()
	require.Len(t, reports, 2)

	assert.Equal(t, "A1", reports[0].Level)
	assert.NoError(t, reports[0].Err)
	assert.Len(t, reports[0].Topics, 3)
	// broken.json, noanswer.yml and the duplicate articles.yaml
	assert.Len(t, reports[0].Skipped, 3)

	assert.ErrorIs(t, reports[1].Err, ErrNoValidTopics)
	assert.Len(t, reports[1].Skipped, 2)
}
