package domain

import "time"

// Stats is a read-only summary of a snapshot.
type Stats struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Tombstoned  int            `json:"tombstoned"`
	ByStatus    map[Status]int `json:"by_status"`
	ByTag       map[string]int `json:"by_tag"`
	ByFolder    map[string]int `json:"by_folder"`
	Enriched    int            `json:"with_enrichment"`
	LastUpdated time.Time      `json:"last_updated"`
}

// ComputeStats aggregates counts over every record in s.
// Tag and folder counts only include live (non-tombstoned) records.
func ComputeStats(s *Snapshot) Stats {
	st := Stats{
		ByStatus: make(map[Status]int),
		ByTag:    make(map[string]int),
		ByFolder: make(map[string]int),
	}
	if s == nil {
		return st
	}

	for _, r := range s.Records {
		st.Total++
		st.ByStatus[r.Status]++
		if r.UpdatedAt.After(st.LastUpdated) {
			st.LastUpdated = r.UpdatedAt
		}
		if r.Enrichment != nil {
			st.Enriched++
		}
		if r.Status == StatusDeleted {
			st.Tombstoned++
			continue
		}
		st.Active++
		for _, tag := range r.Tags {
			st.ByTag[tag]++
		}
		if r.FolderID != "" {
			st.ByFolder[r.FolderID]++
		}
	}
	return st
}
