package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/quizbot/core/logger"
)

// extensions lists supported topic file suffixes in lookup priority order.
var extensions = []string{".json", ".yaml", ".yml"}

// Catalog serves levels and topics from a file system.
type Catalog struct {
	fsys   fs.FS
	levels []string
}

// New returns a catalog over fsys restricted to the given ordered levels.
func New(fsys fs.FS, levels []string) *Catalog {
	return &Catalog{fsys: fsys, levels: append([]string(nil), levels...)}
}

// NewDir returns a catalog rooted at a directory on disk.
func NewDir(dir string, levels []string) *Catalog {
	return New(os.DirFS(dir), levels)
}

// Levels returns the configured levels in display order.
func (c *Catalog) Levels() []string {
	return append([]string(nil), c.levels...)
}

// HasLevel reports whether level belongs to the configured set.
func (c *Catalog) HasLevel(level string) bool {
	return slices.Contains(c.levels, level)
}

// Skipped describes a topic file that was left out of a listing.
type Skipped struct {
	Path string
	Err  error
}

// ListTopics returns the usable topics of level ordered by key.
// Unusable files are logged and skipped.
func (c *Catalog) ListTopics(ctx context.Context, level string) ([]TopicRef, error) {
	refs, skipped, err := c.scan(level)
	for _, s := range skipped {
		logger.Warn(ctx, "content", "topic.skip",
			slog.String("level_id", level),
			slog.String("path", s.Path),
			logger.Err(s.Err),
		)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "content", "topics.list",
		slog.String("level_id", level),
		slog.Int("count", len(refs)),
		slog.Int("skipped", len(skipped)),
	)
	return refs, nil
}

// LoadTopic reads and validates one topic.
func (c *Catalog) LoadTopic(ctx context.Context, level, key string) (Topic, error) {
	if !c.HasLevel(level) || !validKey(key) {
		return Topic{}, fmt.Errorf("%w: %s/%s", ErrNotFound, level, key)
	}
	for _, ext := range extensions {
		p := path.Join(level, key+ext)
		data, err := fs.ReadFile(c.fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Topic{}, fmt.Errorf("content: read %s: %w", p, err)
		}
		topic, err := decodeTopic(p, data)
		if err != nil {
			logger.Warn(ctx, "content", "topic.corrupt", slog.String("path", p), logger.Err(err))
			return Topic{}, err
		}
		topic.Level, topic.Key = level, key
		return topic, nil
	}
	return Topic{}, fmt.Errorf("%w: %s/%s", ErrNotFound, level, key)
}

// LevelReport summarises the state of one level directory.
type LevelReport struct {
	Level   string
	Topics  []TopicRef
	Skipped []Skipped
	Err     error
}

// Inspect scans every configured level without logging, for offline checks.
func (c *Catalog) Inspect() []LevelReport {
	reports := make([]LevelReport, 0, len(c.levels))
	for _, level := range c.levels {
		refs, skipped, err := c.scan(level)
		reports = append(reports, LevelReport{Level: level, Topics: refs, Skipped: skipped, Err: err})
	}
	return reports
}

func (c *Catalog) scan(level string) ([]TopicRef, []Skipped, error) {
	if !c.HasLevel(level) {
		return nil, nil, fmt.Errorf("%w: level %q", ErrNotFound, level)
	}
	entries, err := fs.ReadDir(c.fsys, level)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: level %q has no directory", ErrNotFound, level)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("content: read level %s: %w", level, err)
	}

	var (
		refs    []TopicRef
		skipped []Skipped
		files   int
		seen    = make(map[string]string)
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key, ok := topicKey(name)
		if !ok {
			continue
		}
		files++
		p := path.Join(level, name)
		if prev, dup := seen[key]; dup {
			skipped = append(skipped, Skipped{Path: p, Err: fmt.Errorf("duplicate topic key %q, already served by %s", key, prev)})
			continue
		}
		if !validKey(key) {
			skipped = append(skipped, Skipped{Path: p, Err: fmt.Errorf("invalid topic key %q", key)})
			continue
		}
		data, err := fs.ReadFile(c.fsys, p)
		if err != nil {
			skipped = append(skipped, Skipped{Path: p, Err: err})
			continue
		}
		topic, err := decodeTopic(p, data)
		if err != nil {
			skipped = append(skipped, Skipped{Path: p, Err: err})
			continue
		}
		seen[key] = p
		refs = append(refs, TopicRef{Key: key, Name: topic.Name})
	}
	if files == 0 {
		return nil, skipped, fmt.Errorf("%w: level %q has no topic files", ErrNotFound, level)
	}
	if len(refs) == 0 {
		return nil, skipped, fmt.Errorf("%w: level %q", ErrNoValidTopics, level)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, skipped, nil
}

// topicKey strips a supported extension from a file name.
func topicKey(name string) (string, bool) {
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	ext := strings.ToLower(path.Ext(name))
	if !slices.Contains(extensions, ext) {
		return "", false
	}
	return strings.TrimSuffix(name, path.Ext(name)), true
}

func validKey(key string) bool {
	if key == "" || len(key) > MaxKeyLen || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

func decodeTopic(p string, data []byte) (Topic, error) {
	var raw topicFile
	var err error
	if strings.EqualFold(path.Ext(p), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return Topic{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
	}
	for i, ex := range raw.Exercises {
		if err := ex.validate(); err != nil {
			return Topic{}, fmt.Errorf("%w: %s: exercise %d: %v", ErrCorrupt, p, i+1, err)
		}
	}
	name := strings.TrimSpace(raw.TopicName)
	if name == "" {
		name = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	return Topic{Name: name, Exercises: raw.Exercises}, nil
}
