package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/sources"
)

// Store is the durable snapshot backend.
type Store interface {
	Load() (*domain.Snapshot, error)
	Commit(*domain.Snapshot) error
}

// Enricher derives the enrichment payload for one bookmark.
type Enricher interface {
	Enrich(ctx context.Context, b domain.RawBookmark) (*domain.Enrichment, error)
}

// Categorizer assigns topical tags.
type Categorizer interface {
	Categorize(b domain.RawBookmark) []string
}

// Rules is the tagging configuration a run reads. It is swapped as a whole
// and never changes while a run is in flight.
type Rules struct {
	Folders     domain.FolderMapping
	Categorizer Categorizer
}

type Options struct {
	Rules Rules

	// FetchFromFolders enables folder-to-tag mapping.
	FetchFromFolders bool

	// Enricher is optional; without one every processed record is skipped.
	Enricher Enricher

	Concurrency   int
	MaxFailedRuns int

	Logger logger.Logger
	Now    func() time.Time // for testing, defaults to time.Now
}

// Engine reconciles fetched batches against the store.
//
// Engine is not reentrant: callers serialize runs (see scheduler.SyncRunner
// and state.AcquireLock).
type Engine struct {
	store            Store
	fetchFromFolders bool
	enricher         Enricher
	concurrency      int
	maxFailedRuns    int
	logger           logger.Logger
	now              func() time.Time

	rulesMu sync.RWMutex
	rules   Rules
}

func NewEngine(store Store, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = 1
	}
	return &Engine{
		store:            store,
		fetchFromFolders: opts.FetchFromFolders,
		enricher:         opts.Enricher,
		concurrency:      conc,
		maxFailedRuns:    opts.MaxFailedRuns,
		logger:           log,
		now:              now,
		rules:            opts.Rules,
	}
}

// SetRules replaces the tagging rules for subsequent runs.
func (e *Engine) SetRules(r Rules) {
	e.rulesMu.Lock()
	e.rules = r
	e.rulesMu.Unlock()
}

func (e *Engine) currentRules() Rules {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.rules
}

// RunOptions tunes a single run.
type RunOptions struct {
	// DryRun computes the diff and stops: no enrichment, no commit.
	DryRun bool
}

// Run fetches the full listing and reconciles it. A fetch failure returns
// *domain.FetchError before the store is touched.
func (e *Engine) Run(ctx context.Context, f sources.Fetcher, opts RunOptions) (*Result, error) {
	batch, err := sources.FetchAll(ctx, f)
	if err != nil {
		return nil, err
	}
	return e.Reconcile(ctx, batch, opts)
}

// Reconcile applies one fetched batch to the stored snapshot and commits the
// outcome once. Cancelling ctx stops new items from starting; items already
// finished and all tombstones are still committed and the result is marked
// Interrupted.
func (e *Engine) Reconcile(ctx context.Context, batch []domain.RawBookmark, opts RunOptions) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: e.now().UTC(),
		DryRun:    opts.DryRun,
	}
	log := e.logger.With(logger.String("run_id", res.RunID))

	prev, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	batch = e.dropInvalid(batch, res.RunID)
	p := newPlan(prev, batch, DiffPolicy{
		MaxFailedRuns: e.maxFailedRuns,
		RetrySkipped:  e.enricher != nil,
	})
	res.Diff = p.diff

	if opts.DryRun {
		res.Snapshot = prev
		res.FinishedAt = e.now().UTC()
		return res, nil
	}

	rules := e.currentRules()
	processed, interrupted := e.processAll(ctx, prev, p, rules)
	res.Interrupted = interrupted

	next := prev.Clone()
	for _, rec := range processed {
		if old, ok := prev.Get(rec.ID); ok && repeatsFailure(old, rec) {
			res.markRepeatedFailure(rec.ID)
		}
		next.Records[rec.ID] = rec
		res.Updated = append(res.Updated, rec.Clone())
	}

	now := e.now().UTC()
	for _, id := range p.diff.Tombstoned {
		rec := next.Records[id]
		rec.Status = domain.StatusDeleted
		rec.UpdatedAt = now
		res.Tombstoned = append(res.Tombstoned, rec.Clone())
	}

	if len(res.Updated) == 0 && len(res.Tombstoned) == 0 {
		res.Snapshot = prev
		res.FinishedAt = e.now().UTC()
		log.Debug("nothing to reconcile",
			logger.Int("unchanged", len(p.diff.Unchanged)))
		return res, nil
	}

	if err := e.store.Commit(next); err != nil {
		log.Error("failed to commit state",
			logger.Error(err))
		return nil, err
	}
	res.Committed = true
	res.Snapshot = next
	res.FinishedAt = e.now().UTC()

	enriched, failed, skipped := res.counts()
	log.Info("reconciliation committed",
		logger.Int("processed", len(res.Updated)),
		logger.Int("enriched", enriched),
		logger.Int("failed", failed),
		logger.Int("skipped", skipped),
		logger.Int("tombstoned", len(res.Tombstoned)),
		logger.Int("unchanged", len(p.diff.Unchanged)),
		logger.Bool("interrupted", res.Interrupted),
		logger.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))

	return res, nil
}

func (e *Engine) dropInvalid(batch []domain.RawBookmark, runID string) []domain.RawBookmark {
	out := batch[:0:0]
	for _, b := range batch {
		if b.ID == "" {
			e.logger.Warn("dropping fetched bookmark without id", logger.String("run_id", runID))
			continue
		}
		out = append(out, b)
	}
	return out
}

// processAll runs the per-item pipeline over every ToProcess id with bounded
// concurrency. Items that never started or were cut short by cancellation
// are left out and stay as they were in prev.
func (e *Engine) processAll(ctx context.Context, prev *domain.Snapshot, p *plan, rules Rules) ([]*domain.BookmarkRecord, bool) {
	results := make([]*domain.BookmarkRecord, len(p.diff.ToProcess))
	interrupted := false

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, id := range p.diff.ToProcess {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		old, _ := prev.Get(id)
		raw, hash := p.items[id], p.hashes[id]
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.processItem(ctx, rules, raw, hash, old)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*domain.BookmarkRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			out = append(out, rec)
		}
	}
	if len(out) < len(results) {
		interrupted = true
	}
	return out, interrupted
}

// processItem maps the folder, categorizes, then enriches. It returns nil
// only when ctx ended before enrichment could finish.
func (e *Engine) processItem(ctx context.Context, rules Rules, raw domain.RawBookmark, hash string, old *domain.BookmarkRecord) *domain.BookmarkRecord {
	now := e.now().UTC()

	var rec *domain.BookmarkRecord
	if old != nil {
		rec = old.Clone()
	} else {
		rec = &domain.BookmarkRecord{ID: raw.ID, FirstSeenAt: now}
	}
	rec.Raw = raw
	rec.FolderID = raw.FolderID
	rec.ContentHash = hash
	rec.Tags = e.buildTags(raw, rules)

	if e.enricher == nil {
		rec.Status = domain.StatusSkipped
		rec.Attempts = 0
		rec.LastError = ""
		rec.UpdatedAt = now
		return rec
	}

	enr, err := e.enricher.Enrich(ctx, raw)
	switch {
	case err == nil:
		rec.Enrichment = enr
		rec.Status = domain.StatusEnriched
		rec.Attempts = 0
		rec.LastError = ""
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return nil
	default:
		attempts := 1
		if old != nil && old.Status == domain.StatusFailed && old.ContentHash == hash {
			attempts = old.Attempts + 1
		}
		rec.Status = domain.StatusFailed
		rec.Attempts = attempts
		rec.LastError = err.Error()
		e.logger.Warn("enrichment failed",
			logger.String("id", raw.ID),
			logger.Int("failed_runs", attempts),
			logger.Error(err))
	}
	rec.UpdatedAt = e.now().UTC()
	return rec
}

// repeatsFailure reports a retry that failed again on unchanged content.
func repeatsFailure(old, rec *domain.BookmarkRecord) bool {
	return old.Status == domain.StatusFailed &&
		rec.Status == domain.StatusFailed &&
		old.ContentHash == rec.ContentHash
}

// buildTags puts the folder tag first, then categories in sorted order.
func (e *Engine) buildTags(raw domain.RawBookmark, rules Rules) []string {
	tags := []string{}
	seen := map[string]struct{}{}
	if e.fetchFromFolders {
		if tag, ok := domain.MapFolder(raw.FolderID, rules.Folders); ok {
			tags = append(tags, tag)
			seen[tag] = struct{}{}
		}
	}
	if rules.Categorizer == nil {
		return tags
	}
	cats := rules.Categorizer.Categorize(raw)
	sort.Strings(cats)
	for _, c := range cats {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		tags = append(tags, c)
	}
	return tags
}
