package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/index"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// SnapshotLoader reads the last committed snapshot.
type SnapshotLoader interface {
	Load() (*domain.Snapshot, error)
}

// StateSyncer loads the committed state into the memory index on startup
type StateSyncer struct {
	store  SnapshotLoader
	index  *index.MemoryIndex
	logger logger.Logger
}

// NewStateSyncer creates a new state syncer
func NewStateSyncer(
	store SnapshotLoader,
	idx *index.MemoryIndex,
	log logger.Logger,
) *StateSyncer {
	return &StateSyncer{
		store:  store,
		index:  idx,
		logger: log,
	}
}

// Sync loads the state file and updates the memory index. A corrupt state
// file is returned as is so the daemon refuses to start on top of it.
func (ss *StateSyncer) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ss.logger.Info("loading committed state into memory")

	snap, err := ss.store.Load()
	if err != nil {
		return err
	}

	ss.index.Update(snap)

	if snap.Len() == 0 {
		ss.logger.Info("no records in state yet")
		return nil
	}

	ss.logger.Info("loaded committed state",
		logger.Int("count", snap.Len()))

	return nil
}
