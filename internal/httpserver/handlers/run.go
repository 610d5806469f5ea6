package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

type runResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// TriggerRun queues a manual validation run. At most one run can be
// queued; the runner itself never overlaps runs.
func TriggerRun(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.MemoryIndex.Running() {
			writeJSON(w, http.StatusConflict, runResponse{Message: "validation run already in progress"})
			return
		}

		select {
		case d.RunTrigger <- struct{}{}:
			d.Logger.Info("manual validation run triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, runResponse{Triggered: true, Message: "validation run triggered"})
		default:
			d.Logger.Warn("validation run already queued",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, runResponse{Message: "validation run already queued, please wait"})
		}
	}
}
