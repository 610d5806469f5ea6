package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/eliwatch/internal/store/redis"
)

type resultsResponse struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Count      int                   `json:"count"`
	Results    []domain.SourceResult `json:"results"`
}

// Results lists the latest results, optionally filtered by
// ?status=good|warning|error, ?aspect=license_url|privacy_policy_url|imagery
// and ?type=tms|wms|wms_endpoint|wmts.
func Results(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		run, ok := d.MemoryIndex.LatestRun()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no validation run available yet")
			return
		}

		results := d.MemoryIndex.Results(filter)
		writeJSON(w, http.StatusOK, resultsResponse{
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Count:      len(results),
			Results:    results,
		})
	}
}

func parseFilter(r *http.Request) (index.Filter, error) {
	q := r.URL.Query()
	var f index.Filter

	if s := strings.ToLower(strings.TrimSpace(q.Get("status"))); s != "" {
		switch st := domain.Status(s); st {
		case domain.StatusGood, domain.StatusWarning, domain.StatusError:
			f.Status = st
		default:
			return f, errors.New("invalid status: " + s)
		}
	}
	if a := strings.ToLower(strings.TrimSpace(q.Get("aspect"))); a != "" {
		switch a {
		case domain.AspectLicense, domain.AspectPrivacy, domain.AspectImagery:
			f.Aspect = a
		default:
			return f, errors.New("invalid aspect: " + a)
		}
	}
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		f.Type = domain.ParseServiceType(t)
	}
	return f, nil
}

// Result returns the latest result of one source. Sources missing from the
// memory index are looked up in Redis when persistence is enabled.
func Result(d deps.Deps) http.HandlerFunc {
	var store *redisstore.Store
	if d.RedisClient != nil {
		store = redisstore.NewStore(d.RedisClient, 0)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if res, ok := d.MemoryIndex.GetResult(id); ok {
			writeJSON(w, http.StatusOK, res)
			return
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			res, err := store.GetResult(ctx, id)
			if err == nil {
				writeJSON(w, http.StatusOK, res)
				return
			}
			if !errors.Is(err, redisstore.ErrNotFound) {
				d.Logger.Warn("redis lookup failed",
					logger.String("id", id),
					logger.Error(err))
			}
		}

		writeError(w, http.StatusNotFound, "unknown source: "+id)
	}
}
