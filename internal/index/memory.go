package index

import (
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// RunInfo summarizes the last sync attempt for status endpoints.
type RunInfo struct {
	RunID       string    `json:"run_id,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
	Processed   int       `json:"processed"`
	Tombstoned  int       `json:"tombstoned"`
	Committed   bool      `json:"committed"`
	Interrupted bool      `json:"interrupted"`
	Error       string    `json:"error,omitempty"`
}

// Filter narrows List results. Zero values match everything except
// tombstones, which need IncludeDeleted or Status=deleted.
type Filter struct {
	Tag            string
	Status         domain.Status
	FolderID       string
	IncludeDeleted bool
	Limit          int
}

// MemoryIndex is a read-only view of the last committed snapshot, served to
// HTTP readers without touching the state file.
type MemoryIndex struct {
	mu         sync.RWMutex
	records    map[string]*domain.BookmarkRecord // ID -> record
	byTag      map[string][]string               // tag -> sorted IDs
	lastReload time.Time                         // Timestamp of last snapshot load
	lastRun    *RunInfo
	now        func() time.Time
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records: make(map[string]*domain.BookmarkRecord),
		byTag:   make(map[string][]string),
		now:     time.Now,
	}
}

// Update replaces every record with a copy of snap.
func (idx *MemoryIndex) Update(snap *domain.Snapshot) {
	c := snap.Clone()

	byTag := make(map[string][]string)
	for _, id := range c.IDs() {
		for _, tag := range c.Records[id].Tags {
			byTag[tag] = append(byTag[tag], id)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records = c.Records
	idx.byTag = byTag
	idx.lastReload = idx.now()
}

// Get retrieves a copy of the record by ID
func (idx *MemoryIndex) Get(id string) (*domain.BookmarkRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List returns copies of matching records sorted by id.
func (idx *MemoryIndex) List(f Filter) []*domain.BookmarkRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var ids []string
	if f.Tag != "" {
		ids = idx.byTag[f.Tag]
	} else {
		ids = make([]string, 0, len(idx.records))
		for id := range idx.records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	out := make([]*domain.BookmarkRecord, 0, len(ids))
	for _, id := range ids {
		rec := idx.records[id]
		if !f.match(rec) {
			continue
		}
		out = append(out, rec.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (f Filter) match(rec *domain.BookmarkRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Status == "" && !f.IncludeDeleted && rec.Status == domain.StatusDeleted {
		return false
	}
	if f.FolderID != "" && rec.FolderID != f.FolderID {
		return false
	}
	return true
}

// Tags returns every tag with at least one record, sorted.
func (idx *MemoryIndex) Tags() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tags := make([]string, 0, len(idx.byTag))
	for tag := range idx.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Stats computes aggregate counts over the indexed records.
func (idx *MemoryIndex) Stats() domain.Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return domain.ComputeStats(&domain.Snapshot{SchemaVersion: domain.SchemaVersion, Records: idx.records})
}

// Count returns the number of records in the index, tombstones included
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.records)
}

// GetLastReload returns the timestamp of the last snapshot load
func (idx *MemoryIndex) GetLastReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastReload
}

// RecordRun stores the outcome of the latest sync attempt.
func (idx *MemoryIndex) RecordRun(info RunInfo) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.lastRun = &info
}

// LastRun returns the latest sync attempt, if any.
func (idx *MemoryIndex) LastRun() (RunInfo, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.lastRun == nil {
		return RunInfo{}, false
	}
	return *idx.lastRun, true
}
