package handler

import (
	"net/http"
	"time"
)

// TaskCounter reports how many tasks are running.
type TaskCounter interface {
	Active() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	tasks     TaskCounter
	mode      string
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler. tasks may be nil when the
// process runs without an engine.
func NewHealthHandler(tasks TaskCounter, mode string) *HealthHandler {
	return &HealthHandler{tasks: tasks, mode: mode, startedAt: time.Now().UTC()}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.tasks != nil {
		body["active_tasks"] = h.tasks.Active()
	}
	writeJSON(w, http.StatusOK, body)
}
