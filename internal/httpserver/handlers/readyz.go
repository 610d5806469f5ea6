package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready   bool `json:"ready"`
	Running bool `json:"running"`
	Results int  `json:"results"`
}

// Readyz reports ready once a validation run has been published,
// either by the runner or from Redis on startup.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ready := d.MemoryIndex.LatestRun()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{
			Ready:   ready,
			Running: d.MemoryIndex.Running(),
			Results: d.MemoryIndex.Count(),
		})
	}
}
