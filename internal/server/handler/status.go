package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyladder/internal/service"
)

// StatusSource yields the current ladder status.
type StatusSource interface {
	Status(ctx context.Context) (service.Status, error)
}

// StatusHandler serves ledger, counter and settlement status.
type StatusHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{source: source, logger: logger.With(slog.String("handler", "status"))}
}

// GetStatus responds with the current status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.source.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
