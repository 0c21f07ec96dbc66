package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/orchestrator"
)

// EventSink receives outbound events.
type EventSink interface {
	Emit(ctx context.Context, eventType string, data any) error
}

// AutomationHandler reads and updates the runtime thresholds.
type AutomationHandler struct {
	automation *config.Automation
	sink       EventSink
	logger     *slog.Logger
}

// NewAutomationHandler creates an AutomationHandler. sink may be nil.
func NewAutomationHandler(automation *config.Automation, sink EventSink, logger *slog.Logger) *AutomationHandler {
	return &AutomationHandler{automation: automation, sink: sink, logger: logger}
}

// Get returns the current thresholds.
// GET /api/automation
func (h *AutomationHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.automation.Snapshot())
}

// Update applies a partial update. Nothing changes if any field is invalid.
// PUT /api/automation
func (h *AutomationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch config.AutomationPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	cfg, err := h.automation.Apply(patch)
	evt := orchestrator.AutomationEvent{Success: err == nil, Config: cfg}
	if err != nil {
		evt.Error = err.Error()
	}
	if h.sink != nil {
		if emitErr := h.sink.Emit(r.Context(), domain.EvtAutomationConfig, evt); emitErr != nil {
			h.logger.WarnContext(r.Context(), "handler: automation event not published",
				slog.String("error", emitErr.Error()),
			)
		}
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, evt)
		return
	}
	h.logger.InfoContext(r.Context(), "automation config updated via api",
		slog.Float64("odds_drop_threshold_pct", cfg.OddsDropThresholdPct),
		slog.Float64("supplementary_timeout_sec", cfg.SupplementaryTimeoutSec),
		slog.Int("max_retry_count", cfg.MaxRetryCount),
	)
	writeJSON(w, http.StatusOK, evt)
}
