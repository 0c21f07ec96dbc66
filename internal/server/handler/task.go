package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/orchestrator"
)

// CommandSubmitter accepts a raw command envelope.
type CommandSubmitter interface {
	Handle(ctx context.Context, frame []byte) (orchestrator.TaskHandle, error)
}

// SubmitFunc adapts a function to CommandSubmitter.
type SubmitFunc func(ctx context.Context, frame []byte) (orchestrator.TaskHandle, error)

// Handle implements CommandSubmitter.
func (f SubmitFunc) Handle(ctx context.Context, frame []byte) (orchestrator.TaskHandle, error) {
	return f(ctx, frame)
}

// TaskPoller reports task state.
type TaskPoller interface {
	Poll(taskID string) (orchestrator.Status, error)
}

// TaskHandler serves command submission and task polling.
type TaskHandler struct {
	commands CommandSubmitter
	tasks    TaskPoller
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler. tasks is nil when commands are
// forwarded to another node; polling then answers 501.
func NewTaskHandler(commands CommandSubmitter, tasks TaskPoller, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{commands: commands, tasks: tasks, logger: logger}
}

// Submit starts a task from a command envelope in the body. Same frame
// format as the command channel.
// POST /api/commands
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	frame, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	task, err := h.commands.Handle(r.Context(), frame)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCommand) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit command failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to submit command")
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Poll reports a task's state. A completed result is returned once.
// GET /api/tasks/{id}
func (h *TaskHandler) Poll(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		writeError(w, http.StatusNotImplemented, "tasks run on another node")
		return
	}
	id := r.PathValue("id")
	st, err := h.tasks.Poll(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}
