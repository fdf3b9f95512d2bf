package reconcile

import (
	"sort"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// DiffResult partitions ids into three disjoint sets, each sorted.
type DiffResult struct {
	ToProcess  []string `json:"to_process"`
	Unchanged  []string `json:"unchanged"`
	Tombstoned []string `json:"tombstoned"`
}

// DiffPolicy tunes which stored records are worth another pass.
type DiffPolicy struct {
	// MaxFailedRuns stops retrying an unchanged failed record once it has
	// failed this many runs in a row. Zero or less retries forever.
	MaxFailedRuns int

	// RetrySkipped reprocesses records stored as skipped, so enabling
	// enrichment later fills them in.
	RetrySkipped bool
}

// plan is a diff plus the collapsed batch it was computed from.
type plan struct {
	diff   DiffResult
	items  map[string]domain.RawBookmark
	hashes map[string]string
}

// ComputeDiff compares a fetched batch against snap. Duplicate ids in the
// batch collapse to their last occurrence.
func ComputeDiff(snap *domain.Snapshot, batch []domain.RawBookmark, policy DiffPolicy) DiffResult {
	return newPlan(snap, batch, policy).diff
}

func newPlan(snap *domain.Snapshot, batch []domain.RawBookmark, policy DiffPolicy) *plan {
	p := &plan{
		items:  make(map[string]domain.RawBookmark, len(batch)),
		hashes: make(map[string]string, len(batch)),
	}
	for _, b := range batch {
		p.items[b.ID] = b
	}

	for id, b := range p.items {
		hash := domain.ContentHash(b)
		p.hashes[id] = hash

		prev, ok := snap.Get(id)
		if needsProcessing(prev, ok, hash, policy) {
			p.diff.ToProcess = append(p.diff.ToProcess, id)
		} else {
			p.diff.Unchanged = append(p.diff.Unchanged, id)
		}
	}

	if snap != nil {
		for id, rec := range snap.Records {
			if _, fetched := p.items[id]; fetched || rec.Status == domain.StatusDeleted {
				continue
			}
			p.diff.Tombstoned = append(p.diff.Tombstoned, id)
		}
	}

	sort.Strings(p.diff.ToProcess)
	sort.Strings(p.diff.Unchanged)
	sort.Strings(p.diff.Tombstoned)
	return p
}

func needsProcessing(prev *domain.BookmarkRecord, exists bool, hash string, policy DiffPolicy) bool {
	if !exists || prev.ContentHash != hash {
		return true
	}
	switch prev.Status {
	case domain.StatusPending, domain.StatusDeleted:
		return true
	case domain.StatusFailed:
		return policy.MaxFailedRuns <= 0 || prev.Attempts < policy.MaxFailedRuns
	case domain.StatusSkipped:
		return policy.RetrySkipped
	}
	return false
}
