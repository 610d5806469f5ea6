package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/mw"
)

func init() { Register(registerRun) }

func registerRun(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             5,
		RefillPerIPPerMin: 2,
		MaxEntries:        1024,
		IdleTTL:           time.Hour,
		TrustProxy:        d.TrustProxy,
	})
	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		limit,
	).Post("/api/run", handlers.TriggerRun(d))
}
