package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
)

type componentStatus struct {
	OK              bool    `json:"ok"`
	Sources         string  `json:"sources,omitempty"`
	SourcesChecked  *int    `json:"sources_checked,omitempty"`
	LastRun         string  `json:"last_run,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Running         bool    `json:"running,omitempty"`
	Mode            string  `json:"mode,omitempty"`
	Impact          string  `json:"impact,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type summaryResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
	Counts     domain.Summary             `json:"counts"`
}

func Summary(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checked := d.MemoryIndex.Count()
		runner := componentStatus{
			OK:             checked > 0,
			Sources:        d.SourcesDir,
			SourcesChecked: &checked,
			LastRun:        "never",
			Running:        d.MemoryIndex.Running(),
		}
		if run, ok := d.MemoryIndex.LatestRun(); ok {
			runner.LastRun = run.FinishedAt.Format("2006-01-02 15:04:05")
			runner.DurationSeconds = run.Duration().Seconds()
		}

		components := map[string]componentStatus{
			"runner": runner,
			"redis":  checkRedis(r.Context(), d),
		}

		counts := d.MemoryIndex.Summary()
		if counts == nil {
			counts = domain.Summary{}
		}

		writeJSON(w, http.StatusOK, summaryResponse{
			Mode:       determineMode(components),
			Components: components,
			Counts:     counts,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if runner, exists := components["runner"]; exists {
		if !runner.OK {
			return "critical" // nothing to serve yet
		}
	}

	// Redis is optional; results stay available from memory
	if redis, exists := components["redis"]; exists && !redis.OK && redis.Mode != "disabled" {
		return "degraded"
	}

	return "ok"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "results-not-persisted",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "results-not-persisted",
			Error:  "timeout",
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "results-persisted",
	}
}
