package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"thermoctl/pkg/control"
	"thermoctl/pkg/logging"
)

// StatusProvider exposes the current loop state. *control.Loop satisfies it.
type StatusProvider interface {
	Status() control.Status
}

// StatusHandler serves the current run status.
type StatusHandler struct {
	provider StatusProvider
}

func NewStatusHandler(p StatusProvider) *StatusHandler {
	return &StatusHandler{provider: p}
}

// Handle serves GET /api/status.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	status := h.provider.Status()
	status.LastLogLine = logging.GlobalLogCapture.LastLine()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("Failed to encode status", "error", err)
	}
}
