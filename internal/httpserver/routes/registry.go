package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
)

// Registrar mounts one endpoint group. Guards are applied inside each
// registrar since they depend on deps.
type Registrar func(r chi.Router, d deps.Deps)

var registry []Registrar

// Register is called from each route file's init.
func Register(reg Registrar) {
	registry = append(registry, reg)
}

// RegisterAll mounts every registered group. Called once from server.New().
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, reg := range registry {
		reg(r, d)
	}
}
