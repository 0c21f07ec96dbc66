package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const archiveRoot = "archive/order_records/"

// ArchiveHandler lists archived order record objects.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// List returns archive objects, optionally narrowed to a day as
// ?day=YYYY/MM/DD or a month as ?day=YYYY/MM.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	day := strings.Trim(r.URL.Query().Get("day"), "/")
	if strings.Contains(day, "..") {
		writeError(w, http.StatusBadRequest, "invalid day")
		return
	}
	prefix := archiveRoot
	if day != "" {
		prefix += day + "/"
	}
	objs, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if objs == nil {
		objs = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "objects": objs})
}
