package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/index"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Records    *int   `json:"records,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type statsResponse struct {
	Mode       string                     `json:"mode"`
	Stats      domain.Stats               `json:"stats"`
	LastRun    *index.RunInfo             `json:"last_run,omitempty"`
	Components map[string]componentStatus `json:"components"`
}

// Stats reports record counts, the latest run and component health.
func Stats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := d.MemoryIndex.Count()
		lastReload := d.MemoryIndex.GetLastReload()
		lastReloadStr := "never"
		if !lastReload.IsZero() {
			lastReloadStr = lastReload.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"state": checkState(d, records, lastReloadStr),
			"cache": checkCache(r.Context(), d),
		}

		resp := statsResponse{
			Mode:       determineMode(components),
			Stats:      d.MemoryIndex.Stats(),
			Components: components,
		}
		if run, ok := d.MemoryIndex.LastRun(); ok {
			resp.LastRun = &run
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func determineMode(components map[string]componentStatus) string {
	if state, exists := components["state"]; exists && !state.OK {
		return "critical" // no readable state
	}
	if cache, exists := components["cache"]; exists && !cache.OK && cache.Mode != "disabled" {
		return "degraded" // links re-fetched on every enrichment
	}
	return "ok"
}

func checkState(d deps.Deps, records int, lastReload string) componentStatus {
	st := componentStatus{OK: true, Records: &records, LastReload: lastReload}
	if d.StateFile == "" {
		return st
	}
	if _, err := os.Stat(d.StateFile); err != nil && !os.IsNotExist(err) {
		st.OK = false
		st.Error = err.Error()
	}
	return st
}

func checkCache(ctx context.Context, d deps.Deps) componentStatus {
	if d.LinkCache == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "links-resolved-every-run",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.LinkCache.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "links-resolved-every-run",
			Error:  "unreachable",
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "link-cache-enabled",
	}
}
