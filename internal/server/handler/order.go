package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// OrderHandler serves persisted order records and their audit trail.
type OrderHandler struct {
	records domain.OrderRecordStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewOrderHandler creates an OrderHandler. audit may be nil.
func NewOrderHandler(records domain.OrderRecordStore, audit domain.AuditStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{records: records, audit: audit, logger: logger}
}

// Get returns one order record and its audit entries.
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.records.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}

	entries := []domain.AuditEntry{}
	if h.audit != nil {
		if got, err := h.audit.ListByOrder(r.Context(), id); err == nil {
			entries = got
		} else {
			h.logger.WarnContext(r.Context(), "handler: audit lookup failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "audit": entries})
}

// List returns records for one handler.
// GET /api/orders?handler=...&limit=50&offset=0
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("handler")
	if name == "" {
		writeError(w, http.StatusBadRequest, "handler query parameter required")
		return
	}
	recs, err := h.records.ListByHandler(r.Context(), name, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("handler", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if recs == nil {
		recs = []domain.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": recs})
}
