package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
)

func init() { Register(registerSync) }

func registerSync(r chi.Router, d deps.Deps) {
	r.With(
		mw.Restrict(d.AllowedCIDRS, d.AllowedHosts, d.TrustProxy, d.Logger),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.SyncRateBurst,
			RefillPerIPPerMin: d.SyncRatePerMin,
			MaxEntries:        1024,
			TrustProxy:        d.TrustProxy,
		}),
	).Post("/sync", handlers.Sync(d))
}
