package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

// Sync queues a reconciliation run. The trigger channel holds one pending
// request, so a second call before the runner picks it up gets 409.
func Sync(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r, d.TrustProxy)
		select {
		case d.SyncTrigger <- struct{}{}:
			d.Logger.Info("manual sync triggered", logger.String("client_ip", ip))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		default:
			d.Logger.Warn("sync already pending", logger.String("client_ip", ip))
			writeJSON(w, http.StatusConflict, map[string]string{"status": "pending"})
		}
	}
}
