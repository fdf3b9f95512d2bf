package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
)

type healthzResponse struct {
	Status        string     `json:"status"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	Version       string     `json:"version,omitempty"`
	Commit        string     `json:"commit,omitempty"`
	BuildDate     string     `json:"build_date,omitempty"`
	GoVersion     string     `json:"go_version,omitempty"`
}

// Healthz is a liveness probe: it answers as long as the process serves HTTP,
// whatever the state of the last sync.
func Healthz(d deps.Deps) http.HandlerFunc {
	now := d.TimeNow
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: now().Sub(d.StartTime).Seconds(),
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
		}
		if d.MemoryIndex != nil {
			if run, ok := d.MemoryIndex.LastRun(); ok {
				resp.LastSync = &run.FinishedAt
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
