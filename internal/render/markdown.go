package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

const (
	indexFile   = "index.md"
	untaggedTag = "untagged"
	snippetLen  = 80
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Markdown writes one note per bookmark plus a tag index.
type Markdown struct {
	dir    string
	logger logger.Logger
}

func NewMarkdown(dir string, log logger.Logger) (*Markdown, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("output directory is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Markdown{dir: dir, logger: log}, nil
}

func (m *Markdown) Name() string { return "markdown" }

// Consume rewrites the notes of every record the run touched. Tombstoned
// bookmarks keep their note, marked deleted. The index is rebuilt from the
// committed snapshot.
func (m *Markdown) Consume(_ context.Context, res *reconcile.Result) error {
	if !res.Changed() {
		return nil
	}

	written := 0
	for _, group := range [][]*domain.BookmarkRecord{res.Updated, res.Tombstoned} {
		for _, rec := range group {
			if err := m.writeNote(rec); err != nil {
				return err
			}
			written++
		}
	}

	if res.Snapshot != nil {
		if err := utils.WriteFileAtomic(filepath.Join(m.dir, indexFile), RenderIndex(res.Snapshot), 0o644); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}

	m.logger.Info("markdown rendered",
		logger.String("run_id", res.RunID),
		logger.String("dir", m.dir),
		logger.Int("notes", written))
	return nil
}

func (m *Markdown) writeNote(rec *domain.BookmarkRecord) error {
	data, err := RenderNote(rec)
	if err != nil {
		return err
	}
	path := filepath.Join(m.dir, NoteName(rec.ID))
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write note %s: %w", rec.ID, err)
	}
	return nil
}

// NoteName is the file name of a bookmark's note.
func NoteName(id string) string {
	name := unsafeName.ReplaceAllString(id, "_")
	if name == "" || name == "_" {
		name = "bookmark"
	}
	return name + ".md"
}

type frontMatter struct {
	ID        string   `yaml:"id"`
	Status    string   `yaml:"status"`
	Author    string   `yaml:"author,omitempty"`
	Folder    string   `yaml:"folder,omitempty"`
	Tags      []string `yaml:"tags"`
	URLs      []string `yaml:"urls,omitempty"`
	Sentiment string   `yaml:"sentiment,omitempty"`
	Created   string   `yaml:"created,omitempty"`
	Updated   string   `yaml:"updated"`
	Error     string   `yaml:"error,omitempty"`
}

// RenderNote formats rec as markdown with YAML front matter.
func RenderNote(rec *domain.BookmarkRecord) ([]byte, error) {
	fm := frontMatter{
		ID:      rec.ID,
		Status:  string(rec.Status),
		Author:  rec.Raw.AuthorHandle,
		Folder:  rec.FolderID,
		Tags:    rec.Tags,
		URLs:    rec.Raw.URLs,
		Updated: rec.UpdatedAt.UTC().Format(time.RFC3339),
		Error:   rec.LastError,
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	if !rec.Raw.CreatedAt.IsZero() {
		fm.Created = rec.Raw.CreatedAt.UTC().Format(time.RFC3339)
	}
	if rec.Enrichment != nil {
		fm.Sentiment = rec.Enrichment.Sentiment.Label
	}

	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", heading(rec))
	if text := strings.TrimSpace(rec.Raw.Text); text != "" {
		b.WriteString(quote(text))
		b.WriteString("\n")
	}
	if rec.Raw.AuthorHandle != "" {
		fmt.Fprintf(&b, "by @%s", rec.Raw.AuthorHandle)
		if rec.Raw.AuthorName != "" {
			fmt.Fprintf(&b, " (%s)", rec.Raw.AuthorName)
		}
		b.WriteString("\n\n")
	}

	if e := rec.Enrichment; e != nil {
		if len(e.ExpandedLinks) > 0 {
			b.WriteString("## Links\n\n")
			for _, l := range e.ExpandedLinks {
				target := l.FinalURL
				if target == "" {
					target = l.URL
				}
				title := l.Title
				if title == "" {
					title = target
				}
				fmt.Fprintf(&b, "- [%s](%s)", escapeLink(title), target)
				if l.Description != "" {
					fmt.Fprintf(&b, ": %s", l.Description)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		if q := e.Quoted; q != nil && q.Text != "" {
			b.WriteString("## Quoted\n\n")
			b.WriteString(quote(q.Text))
			b.WriteString("\n")
		}
		if len(e.Media) > 0 {
			b.WriteString("## Media\n\n")
			for _, md := range e.Media {
				fmt.Fprintf(&b, "- %s: %s\n", md.Type, md.URL)
			}
			b.WriteString("\n")
		}
	} else if len(rec.Raw.URLs) > 0 {
		b.WriteString("## Links\n\n")
		for _, u := range rec.Raw.URLs {
			fmt.Fprintf(&b, "- <%s>\n", u)
		}
		b.WriteString("\n")
	}

	return b.Bytes(), nil
}

// RenderIndex lists live bookmarks grouped by tag.
func RenderIndex(snap *domain.Snapshot) []byte {
	byTag := map[string][]*domain.BookmarkRecord{}
	for _, id := range snap.IDs() {
		rec := snap.Records[id]
		if rec.Status == domain.StatusDeleted {
			continue
		}
		if len(rec.Tags) == 0 {
			byTag[untaggedTag] = append(byTag[untaggedTag], rec)
			continue
		}
		for _, tag := range rec.Tags {
			byTag[tag] = append(byTag[tag], rec)
		}
	}

	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		if tag != untaggedTag {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	if _, ok := byTag[untaggedTag]; ok {
		tags = append(tags, untaggedTag)
	}

	var b bytes.Buffer
	b.WriteString("# Bookmarks\n")
	for _, tag := range tags {
		recs := byTag[tag]
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", tag, len(recs))
		for _, rec := range recs {
			fmt.Fprintf(&b, "- [%s](%s)\n", escapeLink(snippet(rec.Raw.Text, rec.ID)), NoteName(rec.ID))
		}
	}
	return b.Bytes()
}

func heading(rec *domain.BookmarkRecord) string {
	if e := rec.Enrichment; e != nil {
		for _, l := range e.ExpandedLinks {
			if l.Title != "" {
				return l.Title
			}
		}
	}
	return snippet(rec.Raw.Text, "Bookmark "+rec.ID)
}

func snippet(text, fallback string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if line == "" {
		return fallback
	}
	if r := []rune(line); len(r) > snippetLen {
		return string(r[:snippetLen]) + "…"
	}
	return line
}

func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n") + "\n"
}

func escapeLink(s string) string {
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(s)
}

// RenderAll rewrites every note and the index from snap.
func (m *Markdown) RenderAll(snap *domain.Snapshot) (int, error) {
	ids := snap.IDs()
	for _, id := range ids {
		if err := m.writeNote(snap.Records[id]); err != nil {
			return 0, err
		}
	}
	if err := utils.WriteFileAtomic(filepath.Join(m.dir, indexFile), RenderIndex(snap), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write index: %w", err)
	}
	return len(ids), nil
}
