package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/sources"
	"github.com/MrSnakeDoc/marksync/internal/state"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// clock advances one second per call.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeEnricher fails the ids in fail and records every call.
type fakeEnricher struct {
	mu     sync.Mutex
	fail   map[string]bool
	calls  []string
	before func(id string) // runs before the outcome is decided
}

func (f *fakeEnricher) Enrich(ctx context.Context, b domain.RawBookmark) (*domain.Enrichment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, b.ID)
	fail := f.fail[b.ID]
	f.mu.Unlock()

	if f.before != nil {
		f.before(b.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, &domain.EnrichmentError{ID: b.ID, Attempts: 4, Err: errors.New("429 too many requests")}
	}
	return &domain.Enrichment{
		Sentiment:  domain.AnalyzeSentiment(b.Text),
		EnrichedAt: t0,
	}, nil
}

func (f *fakeEnricher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	store    *state.FileStore
	enricher *fakeEnricher
	engine   *Engine
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"), state.Options{})
	require.NoError(t, err)

	enr := &fakeEnricher{fail: map[string]bool{}}
	clk := &clock{t: t0}
	opts := Options{
		Rules: Rules{
			Folders:     domain.FolderMapping{"f-go": "golang-reading"},
			Categorizer: domain.NewCategorizer(domain.DefaultCategories),
		},
		FetchFromFolders: true,
		Enricher:         enr,
		Concurrency:      4,
		MaxFailedRuns:    3,
		Now:              clk.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return &harness{store: store, enricher: enr, engine: NewEngine(store, opts)}
}

func (h *harness) reconcile(t *testing.T, batch ...domain.RawBookmark) *Result {
	t.Helper()
	res, err := h.engine.Reconcile(context.Background(), batch, RunOptions{})
	require.NoError(t, err)
	return res
}

func (h *harness) load(t *testing.T) *domain.Snapshot {
	t.Helper()
	snap, err := h.store.Load()
	require.NoError(t, err)
	return snap
}

func bm(id, text string) domain.RawBookmark {
	return domain.RawBookmark{ID: id, Text: text, AuthorHandle: "someone", CreatedAt: t0}
}

func statuses(snap *domain.Snapshot) map[string]domain.Status {
	out := map[string]domain.Status{}
	for id, rec := range snap.Records {
		out[id] = rec.Status
	}
	return out
}

func recordIDs(recs []*domain.BookmarkRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestReconcileExample(t *testing.T) {
	h := newHarness(t)
	a, b, c := bm("A", "a"), bm("B", "b"), bm("C", "c")
	h.reconcile(t, a, b)

	res := h.reconcile(t, a, c)

	assert.Equal(t, []string{"C"}, res.Diff.ToProcess)
	assert.Equal(t, []string{"A"}, res.Diff.Unchanged)
	assert.Equal(t, []string{"B"}, res.Diff.Tombstoned)
	assert.Equal(t, []string{"C"}, recordIDs(res.Updated))
	assert.Equal(t, []string{"B"}, recordIDs(res.Tombstoned))
	assert.True(t, res.Committed)

	assert.Equal(t, map[string]domain.Status{
		"A": domain.StatusEnriched,
		"B": domain.StatusDeleted,
		"C": domain.StatusEnriched,
	}, statuses(h.load(t)))
}

func TestReconcileIsIdempotent(t *testing.T) {
	h := newHarness(t)
	batch := []domain.RawBookmark{
		bm("1", "golang generics deep dive"),
		{ID: "2", Text: "reading list", FolderID: "f-go", CreatedAt: t0},
		bm("3", "nothing in particular"),
	}

	first := h.reconcile(t, batch...)
	require.True(t, first.Committed)
	before, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)

	second := h.reconcile(t, batch...)
	after, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)

	assert.False(t, second.Committed)
	assert.Empty(t, second.Diff.ToProcess)
	assert.Empty(t, second.Updated)
	assert.Empty(t, second.Notifiable())
	assert.Equal(t, []string{"1", "2", "3"}, second.Diff.Unchanged)
	assert.Equal(t, string(before), string(after))
	assert.Len(t, h.enricher.called(), 3, "unchanged items are not enriched again")
}

func TestTombstoneRetainsHistory(t *testing.T) {
	h := newHarness(t)
	item := domain.RawBookmark{ID: "1", Text: "golang tips", FolderID: "f-go", CreatedAt: t0}
	h.reconcile(t, item)
	before := h.load(t).Records["1"]
	require.NotNil(t, before.Enrichment)

	res := h.reconcile(t)
	require.Len(t, res.Tombstoned, 1)

	after := h.load(t).Records["1"]
	assert.Equal(t, domain.StatusDeleted, after.Status)
	assert.Equal(t, before.Tags, after.Tags)
	assert.Equal(t, before.Enrichment, after.Enrichment)
	assert.Equal(t, before.Raw, after.Raw)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.True(t, after.FirstSeenAt.Equal(before.FirstSeenAt))

	// A tombstone is not tombstoned again.
	again := h.reconcile(t)
	assert.Empty(t, again.Diff.Tombstoned)
	assert.False(t, again.Committed)
}

func TestReappearedBookmarkIsReprocessed(t *testing.T) {
	h := newHarness(t)
	item := bm("1", "hello")
	h.reconcile(t, item)
	h.reconcile(t)

	res := h.reconcile(t, item)
	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	assert.Equal(t, domain.StatusEnriched, h.load(t).Records["1"].Status)
}

func TestFolderMappingAbsence(t *testing.T) {
	h := newHarness(t)
	res := h.reconcile(t,
		domain.RawBookmark{ID: "unmapped", Text: "golang and kubernetes notes", FolderID: "X", CreatedAt: t0},
		domain.RawBookmark{ID: "mapped", Text: "golang and kubernetes notes", FolderID: "f-go", CreatedAt: t0},
	)
	require.Len(t, res.Updated, 2)

	snap := h.load(t)
	assert.Equal(t, []string{"programming"}, snap.Records["unmapped"].Tags)
	assert.Equal(t, domain.StatusEnriched, snap.Records["unmapped"].Status)
	assert.Equal(t, "X", snap.Records["unmapped"].FolderID)
	assert.Equal(t, []string{"golang-reading", "programming"}, snap.Records["mapped"].Tags)
}

func TestFetchFromFoldersDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.FetchFromFolders = false })
	h.reconcile(t, domain.RawBookmark{ID: "1", Text: "golang", FolderID: "f-go", CreatedAt: t0})

	assert.Equal(t, []string{"programming"}, h.load(t).Records["1"].Tags)
}

func TestPartialFailureIsolation(t *testing.T) {
	h := newHarness(t)
	h.enricher.fail["3"] = true

	var batch []domain.RawBookmark
	for i := 1; i <= 5; i++ {
		batch = append(batch, bm(fmt.Sprint(i), "golang post"))
	}
	res := h.reconcile(t, batch...)

	assert.Equal(t, map[string]domain.Status{
		"1": domain.StatusEnriched,
		"2": domain.StatusEnriched,
		"3": domain.StatusFailed,
		"4": domain.StatusEnriched,
		"5": domain.StatusEnriched,
	}, statuses(h.load(t)))
	assert.Len(t, res.Notifiable(), 5)

	failed := h.load(t).Records["3"]
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.LastError, "429")
	assert.Equal(t, []string{"programming"}, failed.Tags, "tags persist despite enrichment failure")
}

func TestFailedItemsRetriedUntilLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxFailedRuns = 2 })
	h.enricher.fail["1"] = true
	item := bm("1", "flaky")

	h.reconcile(t, item)
	assert.Equal(t, 1, h.load(t).Records["1"].Attempts)

	res := h.reconcile(t, item)
	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	assert.Equal(t, 2, h.load(t).Records["1"].Attempts)

	res = h.reconcile(t, item)
	assert.Equal(t, []string{"1"}, res.Diff.Unchanged, "retry budget exhausted")
	assert.False(t, res.Committed)

	// New content resets the budget.
	h.enricher.fail["1"] = false
	changed := bm("1", "flaky, edited")
	res = h.reconcile(t, changed)
	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	rec := h.load(t).Records["1"]
	assert.Equal(t, domain.StatusEnriched, rec.Status)
	assert.Zero(t, rec.Attempts)
	assert.Empty(t, rec.LastError)
}

func TestRepeatedFailureNotifiedOnce(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxFailedRuns = 5 })
	h.enricher.fail["1"] = true
	item := bm("1", "flaky")

	var notified []int
	for run := 0; run < 3; run++ {
		res := h.reconcile(t, item)
		require.Equal(t, []string{"1"}, res.Diff.ToProcess, "run %d retries the failed item", run+1)
		notified = append(notified, len(res.Notifiable()))
	}
	assert.Equal(t, []int{1, 0, 0}, notified)
	assert.Equal(t, 3, h.load(t).Records["1"].Attempts)

	// edited content that still fails is a new failure
	res := h.reconcile(t, bm("1", "flaky, edited"))
	assert.Len(t, res.Notifiable(), 1)

	// recovery is always notified
	h.enricher.fail["1"] = false
	res = h.reconcile(t, bm("1", "flaky, edited"))
	require.Len(t, res.Notifiable(), 1)
	assert.Equal(t, domain.StatusEnriched, res.Notifiable()[0].Status)
}

func TestFailureKeepsPriorEnrichment(t *testing.T) {
	h := newHarness(t)
	h.reconcile(t, bm("1", "great post"))
	prior := h.load(t).Records["1"].Enrichment
	require.NotNil(t, prior)

	h.enricher.fail["1"] = true
	h.reconcile(t, bm("1", "great post, updated"))

	rec := h.load(t).Records["1"]
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, prior, rec.Enrichment)
	assert.Equal(t, "great post, updated", rec.Raw.Text)
}

func TestWithoutEnricherRecordsAreSkipped(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Enricher = nil })
	res := h.reconcile(t, bm("1", "golang"))

	assert.Equal(t, domain.StatusSkipped, h.load(t).Records["1"].Status)
	assert.Empty(t, res.Notifiable())
	assert.Len(t, res.Updated, 1)

	again := h.reconcile(t, bm("1", "golang"))
	assert.False(t, again.Committed, "skipped records stay put while enrichment is off")
}

func TestSkippedRecordsEnrichedOnceEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store, err := state.NewFileStore(path, state.Options{})
	require.NoError(t, err)

	off := NewEngine(store, Options{})
	_, err = off.Reconcile(context.Background(), []domain.RawBookmark{bm("1", "x")}, RunOptions{})
	require.NoError(t, err)

	on := NewEngine(store, Options{Enricher: &fakeEnricher{}})
	res, err := on.Reconcile(context.Background(), []domain.RawBookmark{bm("1", "x")}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	assert.Equal(t, domain.StatusEnriched, res.Updated[0].Status)
}

func TestDuplicateIDsCollapseToLast(t *testing.T) {
	h := newHarness(t)
	res := h.reconcile(t, bm("1", "first"), bm("1", "second"))

	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	assert.Equal(t, "second", h.load(t).Records["1"].Raw.Text)
}

func TestCancellationCommitsFinishedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, func(o *Options) { o.Concurrency = 1 })
	h.reconcile(t, bm("old", "to be removed"))

	h.enricher.before = func(id string) {
		if id == "2" {
			cancel()
		}
	}
	res, err := h.engine.Reconcile(ctx, []domain.RawBookmark{bm("1", "a"), bm("2", "b"), bm("3", "c")}, RunOptions{})
	require.NoError(t, err)

	assert.True(t, res.Interrupted)
	assert.True(t, res.Committed)
	assert.Equal(t, []string{"1"}, recordIDs(res.Updated))
	assert.Equal(t, []string{"old"}, recordIDs(res.Tombstoned))
	assert.NotContains(t, h.enricher.called(), "3", "no new item starts after cancellation")

	snap := h.load(t)
	assert.Equal(t, map[string]domain.Status{
		"1":   domain.StatusEnriched,
		"old": domain.StatusDeleted,
	}, statuses(snap))

	// The next run picks up what was left.
	h.enricher.before = nil
	next := h.reconcile(t, bm("1", "a"), bm("2", "b"), bm("3", "c"))
	assert.Equal(t, []string{"2", "3"}, next.Diff.ToProcess)
}

func TestDryRunTouchesNothing(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Reconcile(context.Background(), []domain.RawBookmark{bm("1", "a")}, RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.False(t, res.Committed)
	assert.Equal(t, []string{"1"}, res.Diff.ToProcess)
	assert.Empty(t, h.enricher.called())
	_, err = os.Stat(h.store.Path())
	assert.True(t, os.IsNotExist(err))
}

type failingFetcher struct{ err error }

func (f failingFetcher) FetchBookmarks(context.Context, string) (sources.Page, error) {
	return sources.Page{}, f.err
}

func TestFetchFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.reconcile(t, bm("1", "a"))
	before, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)

	_, err = h.engine.Run(context.Background(), failingFetcher{err: errors.New("connection reset")}, RunOptions{})
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)

	after, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestCorruptStateAborts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.store.Path(), []byte("{not json"), 0o600))

	_, err := h.engine.Reconcile(context.Background(), []domain.RawBookmark{bm("1", "a")}, RunOptions{})
	var corrupt *domain.CorruptStateError
	require.ErrorAs(t, err, &corrupt)
	assert.Empty(t, h.enricher.called())

	data, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

// flakyStore fails the first commit.
type flakyStore struct {
	snap    *domain.Snapshot
	failing bool
}

func (s *flakyStore) Load() (*domain.Snapshot, error) { return s.snap.Clone(), nil }

func (s *flakyStore) Commit(snap *domain.Snapshot) error {
	if s.failing {
		s.failing = false
		return &domain.CommitError{Path: "mem", Err: errors.New("disk full")}
	}
	s.snap = snap.Clone()
	return nil
}

func TestCommitFailureIsRetryable(t *testing.T) {
	store := &flakyStore{snap: domain.NewSnapshot(), failing: true}
	e := NewEngine(store, Options{Enricher: &fakeEnricher{}})
	batch := []domain.RawBookmark{bm("1", "a")}

	_, err := e.Reconcile(context.Background(), batch, RunOptions{})
	var commitErr *domain.CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, 0, store.snap.Len(), "prior snapshot stays authoritative")

	res, err := e.Reconcile(context.Background(), batch, RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, store.snap.Len())
}

func TestSetRulesAppliesToNextRun(t *testing.T) {
	h := newHarness(t)
	h.engine.SetRules(Rules{Folders: domain.FolderMapping{"f1": "inbox"}})

	h.reconcile(t, domain.RawBookmark{ID: "1", Text: "golang", FolderID: "f1", CreatedAt: t0})
	assert.Equal(t, []string{"inbox"}, h.load(t).Records["1"].Tags)
}
