package reconcile

import (
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Result is the outcome of one reconciliation run.
type Result struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Diff       DiffResult `json:"diff"`

	// Updated holds every record processed this run, sorted by id.
	Updated []*domain.BookmarkRecord `json:"updated"`
	// Tombstoned holds records newly marked deleted this run, sorted by id.
	Tombstoned []*domain.BookmarkRecord `json:"tombstoned"`

	// Interrupted is set when cancellation left ToProcess items untouched.
	Interrupted bool `json:"interrupted"`
	// Committed is false when nothing changed or on a dry run.
	Committed bool `json:"committed"`
	DryRun    bool `json:"dry_run"`

	// Snapshot is the authoritative state after the run.
	Snapshot *domain.Snapshot `json:"-"`

	// repeatedFailures holds ids that were already failed with the same
	// content before this run and failed again.
	repeatedFailures map[string]struct{}
}

// Notifiable returns the records that transitioned to enriched or failed
// this run. Unchanged records are never included, and neither is a retry
// that failed again on the same content.
func (r *Result) Notifiable() []*domain.BookmarkRecord {
	if r == nil {
		return nil
	}
	var out []*domain.BookmarkRecord
	for _, rec := range r.Updated {
		if _, repeated := r.repeatedFailures[rec.ID]; repeated {
			continue
		}
		if rec.Status == domain.StatusEnriched || rec.Status == domain.StatusFailed {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Result) markRepeatedFailure(id string) {
	if r.repeatedFailures == nil {
		r.repeatedFailures = make(map[string]struct{})
	}
	r.repeatedFailures[id] = struct{}{}
}

// Changed reports whether the run produced anything for consumers.
func (r *Result) Changed() bool {
	return r != nil && (len(r.Updated) > 0 || len(r.Tombstoned) > 0)
}

func (r *Result) counts() (enriched, failed, skipped int) {
	for _, rec := range r.Updated {
		switch rec.Status {
		case domain.StatusEnriched:
			enriched++
		case domain.StatusFailed:
			failed++
		case domain.StatusSkipped:
			skipped++
		}
	}
	return enriched, failed, skipped
}
