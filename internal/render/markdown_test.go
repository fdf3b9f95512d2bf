package render

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
)

var t0 = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func record(id string, status domain.Status, tags ...string) *domain.BookmarkRecord {
	return &domain.BookmarkRecord{
		ID:        id,
		Status:    status,
		Tags:      tags,
		UpdatedAt: t0,
		Raw: domain.RawBookmark{
			ID:           id,
			Text:         "Interesting thread about " + id,
			AuthorHandle: "gopher",
			URLs:         []string{"https://t.co/" + id},
			CreatedAt:    t0,
		},
	}
}

func splitFrontMatter(t *testing.T, data []byte) (frontMatter, string) {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, []byte("---\n")))
	parts := strings.SplitN(string(data[4:]), "---\n", 2)
	require.Len(t, parts, 2)

	var fm frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[0]), &fm))
	return fm, parts[1]
}

func TestRenderNote(t *testing.T) {
	rec := record("42", domain.StatusEnriched, "reading", "programming")
	rec.FolderID = "f1"
	rec.Enrichment = &domain.Enrichment{
		ExpandedLinks: []domain.Link{{URL: "https://t.co/42", FinalURL: "https://go.dev/blog", Title: "The Go Blog", Description: "News"}},
		Quoted:        &domain.Quoted{Text: "line one\nline two"},
		Media:         []domain.Media{{Type: "photo", URL: "https://img/1.png"}},
		Sentiment:     domain.Sentiment{Label: domain.SentimentPositive, Score: 1},
	}

	data, err := RenderNote(rec)
	require.NoError(t, err)
	fm, body := splitFrontMatter(t, data)

	assert.Equal(t, "42", fm.ID)
	assert.Equal(t, "enriched", fm.Status)
	assert.Equal(t, []string{"reading", "programming"}, fm.Tags)
	assert.Equal(t, "f1", fm.Folder)
	assert.Equal(t, domain.SentimentPositive, fm.Sentiment)
	assert.Equal(t, "2025-05-06T07:08:09Z", fm.Updated)

	assert.Contains(t, body, "# The Go Blog\n")
	assert.Contains(t, body, "> Interesting thread about 42\n")
	assert.Contains(t, body, "- [The Go Blog](https://go.dev/blog): News\n")
	assert.Contains(t, body, "> line one\n> line two\n")
	assert.Contains(t, body, "- photo: https://img/1.png\n")
}

func TestRenderNoteWithoutEnrichment(t *testing.T) {
	rec := record("7", domain.StatusFailed)
	rec.LastError = "gave up"

	data, err := RenderNote(rec)
	require.NoError(t, err)
	fm, body := splitFrontMatter(t, data)

	assert.Equal(t, []string{}, fm.Tags)
	assert.Equal(t, "gave up", fm.Error)
	assert.Contains(t, body, "# Interesting thread about 7\n")
	assert.Contains(t, body, "- <https://t.co/7>\n")
}

func TestRenderIndex(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Records["1"] = record("1", domain.StatusEnriched, "go")
	snap.Records["2"] = record("2", domain.StatusEnriched, "ai", "go")
	snap.Records["3"] = record("3", domain.StatusSkipped)
	snap.Records["4"] = record("4", domain.StatusDeleted, "go")

	got := string(RenderIndex(snap))

	assert.True(t, strings.Index(got, "## ai (1)") < strings.Index(got, "## go (2)"))
	assert.True(t, strings.Index(got, "## go (2)") < strings.Index(got, "## untagged (1)"))
	assert.Contains(t, got, "- [Interesting thread about 2](2.md)\n")
	assert.NotContains(t, got, "4.md", "tombstones are not indexed")
}

func TestNoteName(t *testing.T) {
	tests := map[string]string{
		"1234567890": "1234567890.md",
		"a/b c":      "a_b_c.md",
		"../../etc":  "_etc.md",
		"":           "bookmark.md",
	}
	for id, want := range tests {
		assert.Equal(t, want, NoteName(id), "NoteName(%q)", id)
	}
}

func TestConsumeWritesNotesAndIndex(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMarkdown(dir, nil)
	require.NoError(t, err)

	live := record("1", domain.StatusEnriched, "go")
	gone := record("2", domain.StatusDeleted, "go")
	snap := domain.NewSnapshot()
	snap.Records["1"] = live
	snap.Records["2"] = gone

	res := &reconcile.Result{
		RunID:      "r1",
		Updated:    []*domain.BookmarkRecord{live},
		Tombstoned: []*domain.BookmarkRecord{gone},
		Snapshot:   snap,
	}
	require.NoError(t, m.Consume(context.Background(), res))

	note, err := os.ReadFile(filepath.Join(dir, "2.md"))
	require.NoError(t, err)
	fm, _ := splitFrontMatter(t, note)
	assert.Equal(t, "deleted", fm.Status)

	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "(1.md)")
}

func TestConsumeSkipsUnchangedRuns(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMarkdown(dir, nil)
	require.NoError(t, err)

	require.NoError(t, m.Consume(context.Background(), &reconcile.Result{Snapshot: domain.NewSnapshot()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderAll(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMarkdown(dir, nil)
	require.NoError(t, err)

	snap := domain.NewSnapshot()
	snap.Records["1"] = record("1", domain.StatusEnriched, "go")
	snap.Records["2"] = record("2", domain.StatusSkipped)

	n, err := m.RenderAll(snap)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, name := range []string{"1.md", "2.md", "index.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
