package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/index"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
	"github.com/MrSnakeDoc/marksync/internal/sources"
)

// Reconciler runs one fetch-and-reconcile pass.
type Reconciler interface {
	Run(ctx context.Context, f sources.Fetcher, opts reconcile.RunOptions) (*reconcile.Result, error)
}

// Consumer receives committed changes after each run.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, res *reconcile.Result) error
}

// SyncRunner handles periodic and on-demand reconciliation runs
type SyncRunner struct {
	engine        Reconciler
	fetcher       sources.Fetcher
	consumers     []Consumer
	index         *index.MemoryIndex
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{} // closed when the loop goroutine exits
	manualTrigger chan struct{}
	stopOnce      sync.Once

	// runs never overlap
	mu sync.Mutex
}

// NewSyncRunner creates a new sync runner. idx may be nil for one-shot use.
func NewSyncRunner(
	engine Reconciler,
	fetcher sources.Fetcher,
	idx *index.MemoryIndex,
	consumers []Consumer,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SyncRunner {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncRunner{
		engine:        engine,
		fetcher:       fetcher,
		consumers:     consumers,
		index:         idx,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs one sync immediately, then on every tick or manual trigger.
// A failed run is logged and retried on the next tick; the daemon keeps
// serving the last committed state.
func (sr *SyncRunner) Start(ctx context.Context) error {
	if sr.interval <= 0 {
		return fmt.Errorf("invalid sync interval: %s", sr.interval)
	}

	if _, err := sr.Sync(ctx, reconcile.RunOptions{}); err != nil {
		sr.logger.Error("initial sync failed", logger.Error(err))
	}

	ticker := time.NewTicker(sr.interval)
	sr.doneCh = make(chan struct{})
	go func() {
		defer close(sr.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sr.Sync(ctx, reconcile.RunOptions{}); err != nil {
					sr.logger.Error("failed to sync bookmarks", logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual sync triggered")
				if _, err := sr.Sync(ctx, reconcile.RunOptions{}); err != nil {
					sr.logger.Error("failed to sync bookmarks", logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the loop and blocks until any in-flight run, its commit and
// its consumers have finished. Callers release the state lock only after
// Stop returns. Safe to call more than once, or without Start.
func (sr *SyncRunner) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
	if sr.doneCh != nil {
		<-sr.doneCh
	}
	// a Sync called directly (RunOnce) holds mu
	sr.mu.Lock()
	defer sr.mu.Unlock()
}

// Sync runs one reconciliation, refreshes the index and hands the result to
// every consumer. A non-nil result with a non-nil error means the run was
// committed but at least one consumer failed; delivery is retried only when
// the affected records change again.
func (sr *SyncRunner) Sync(ctx context.Context, opts reconcile.RunOptions) (*reconcile.Result, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.logger.Info("syncing bookmarks", logger.Bool("dry_run", opts.DryRun))

	res, err := sr.engine.Run(ctx, sr.fetcher, opts)
	if err != nil {
		sr.recordRun(index.RunInfo{FinishedAt: time.Now().UTC(), Error: err.Error()})
		return nil, err
	}

	sr.recordRun(index.RunInfo{
		RunID:       res.RunID,
		FinishedAt:  res.FinishedAt,
		Processed:   len(res.Updated),
		Tombstoned:  len(res.Tombstoned),
		Committed:   res.Committed,
		Interrupted: res.Interrupted,
	})
	if sr.index != nil && res.Snapshot != nil && !opts.DryRun {
		sr.index.Update(res.Snapshot)
	}

	if !res.Committed || !res.Changed() {
		return res, nil
	}
	return res, sr.notify(ctx, res)
}

func (sr *SyncRunner) notify(ctx context.Context, res *reconcile.Result) error {
	var errs []error
	for _, c := range sr.consumers {
		if err := c.Consume(ctx, res); err != nil {
			sr.logger.Error("consumer failed",
				logger.String("consumer", c.Name()),
				logger.String("run_id", res.RunID),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		sr.logger.Debug("consumer done",
			logger.String("consumer", c.Name()),
			logger.String("run_id", res.RunID))
	}
	return errors.Join(errs...)
}

func (sr *SyncRunner) recordRun(info index.RunInfo) {
	if sr.index != nil {
		sr.index.RecordRun(info)
	}
}
