package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready   bool `json:"ready"`
	Records int  `json:"records"`
}

// Readyz reports ready once the committed state has been loaded.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := d.MemoryIndex != nil && !d.MemoryIndex.GetLastReload().IsZero()
		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true, Records: d.MemoryIndex.Count()})
	}
}
