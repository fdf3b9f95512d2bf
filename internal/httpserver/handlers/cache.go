package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// FlushLinks drops cached link expansions. With ?url= only that entry goes.
func FlushLinks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if url := r.URL.Query().Get("url"); url != "" {
			if err := d.LinkCache.InvalidateLink(ctx, url); err != nil {
				d.Logger.Warn("failed to invalidate link", logger.Error(err))
				writeError(w, http.StatusBadGateway, "cache unavailable")
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"removed": 1})
			return
		}

		removed, err := d.LinkCache.FlushLinks(ctx)
		if err != nil {
			d.Logger.Warn("failed to flush link cache", logger.Error(err))
			writeError(w, http.StatusBadGateway, "cache unavailable")
			return
		}
		d.Logger.Info("link cache flushed", logger.Int("removed", removed))
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}
