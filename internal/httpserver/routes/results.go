package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/mw"
)

func init() { Register(registerResults) }

func registerResults(r chi.Router, d deps.Deps) {
	api := r.With(mw.EnforceHost(d.AllowedHosts, d.Logger))
	api.Get("/api/results", handlers.Results(d))
	api.Get("/api/results/{id}", handlers.Result(d))
	api.Get("/api/summary", handlers.Summary(d))
}
