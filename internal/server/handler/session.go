package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
)

// SessionLister lists live account sessions.
type SessionLister interface {
	List() []session.Info
}

// SessionHandler serves account session endpoints.
type SessionHandler struct {
	sessions SessionLister
	balances domain.BalanceCache
	commands CommandSubmitter
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. balances may be nil.
func NewSessionHandler(sessions SessionLister, balances domain.BalanceCache, commands CommandSubmitter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, balances: balances, commands: commands, logger: logger}
}

type sessionView struct {
	session.Info
	CachedBalance *decimal.Decimal `json:"cached_balance,omitempty"`
}

// List returns every live session with its last cached balance.
// GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List()
	cached := h.cachedBalances(r.Context(), infos)

	out := make([]sessionView, 0, len(infos))
	for _, in := range infos {
		v := sessionView{Info: in}
		if b, ok := cached[in.Handler]; ok {
			v.CachedBalance = &b
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *SessionHandler) cachedBalances(ctx context.Context, infos []session.Info) map[string]decimal.Decimal {
	if h.balances == nil || len(infos) == 0 {
		return nil
	}
	handlers := make([]string, 0, len(infos))
	for _, in := range infos {
		handlers = append(handlers, in.Handler)
	}
	m, err := h.balances.GetBalances(ctx, handlers)
	if err != nil {
		h.logger.WarnContext(ctx, "handler: cached balances unavailable", slog.String("error", err.Error()))
		return nil
	}
	return m
}

// Cancel raises the handler's cancellation flag through a stop command so
// any running compensating loop ends at its next iteration.
// POST /api/sessions/{handler}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("handler")
	data, _ := json.Marshal(map[string]string{"handler": name})
	frame, _ := json.Marshal(domain.Envelope{Type: domain.CmdStopCycle, From: "admin", Data: data})

	task, err := h.commands.Handle(r.Context(), frame)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCommand) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel failed",
			slog.String("handler", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to submit cancel")
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}
