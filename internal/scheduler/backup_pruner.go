package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	// DefaultBackupRetention is how long superseded snapshots are kept
	DefaultBackupRetention = 7 * 24 * time.Hour // 7 days
)

// BackupStore lists and prunes superseded state snapshots.
type BackupStore interface {
	PruneBackups(maxAge time.Duration) ([]string, error)
}

// BackupPruner handles cleanup of old state backups
type BackupPruner struct {
	store     BackupStore
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewBackupPruner creates a new backup pruner
func NewBackupPruner(
	store BackupStore,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *BackupPruner {
	if retention == 0 {
		retention = DefaultBackupRetention
	}

	return &BackupPruner{
		store:     store,
		logger:    log,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic pruning process
func (bp *BackupPruner) Start(ctx context.Context) error {
	// Run immediately on start
	if err := bp.Prune(ctx); err != nil {
		bp.logger.Warn("initial backup pruning failed",
			logger.Error(err))
	}

	// Start periodic pruning
	ticker := time.NewTicker(bp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := bp.Prune(ctx); err != nil {
					bp.logger.Error("backup pruning failed",
						logger.Error(err))
				}
			case <-bp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the pruner
func (bp *BackupPruner) Stop() {
	close(bp.stopCh)
}

// Prune removes backups older than the retention window. The newest backup
// always survives.
func (bp *BackupPruner) Prune(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	removed, err := bp.store.PruneBackups(bp.retention)
	if err != nil {
		return err
	}

	if len(removed) > 0 {
		bp.logger.Info("backup pruning completed",
			logger.Int("removed", len(removed)),
			logger.Strings("files", removed),
			logger.String("retention", bp.retention.String()))
	} else {
		bp.logger.Debug("no backups to prune")
	}

	return nil
}
