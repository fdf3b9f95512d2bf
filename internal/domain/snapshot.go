package domain

import "sort"

// SchemaVersion is the current on-disk state format.
const SchemaVersion = 1

// Snapshot is the full set of records as durably persisted.
type Snapshot struct {
	SchemaVersion int                        `json:"schema_version"`
	Records       map[string]*BookmarkRecord `json:"records"`
}

// NewSnapshot returns an empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Records:       make(map[string]*BookmarkRecord),
	}
}

// Get returns the record for id.
func (s *Snapshot) Get(id string) (*BookmarkRecord, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.Records[id]
	return r, ok
}

// Len returns the number of records, tombstones included.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// IDs returns the record ids in ascending order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Records))
	for id := range s.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot()
	if s == nil {
		return c
	}
	c.SchemaVersion = s.SchemaVersion
	for id, r := range s.Records {
		c.Records[id] = r.Clone()
	}
	return c
}
