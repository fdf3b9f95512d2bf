package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
)

func init() { Register(registerCache) }

func registerCache(r chi.Router, d deps.Deps) {
	if d.LinkCache == nil {
		return
	}
	r.With(mw.Restrict(d.AllowedCIDRS, d.AllowedHosts, d.TrustProxy, d.Logger)).Delete("/cache/links", handlers.FlushLinks(d))
}
