package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Route("/bookmarks", func(r chi.Router) {
		r.Use(mw.Restrict(d.AllowedCIDRS, d.AllowedHosts, d.TrustProxy, d.Logger))
		r.Get("/", handlers.ListBookmarks(d))
		r.Get("/{id}", handlers.GetBookmark(d))
	})
	r.With(mw.Restrict(d.AllowedCIDRS, d.AllowedHosts, d.TrustProxy, d.Logger)).Get("/tags", handlers.Tags(d))
}
