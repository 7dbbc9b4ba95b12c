package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"thermoctl/pkg/runlog"
)

// RunlogHandler serves the samples of the most recent run from its log file,
// so a freshly connected live view can backfill the curve so far.
type RunlogHandler struct {
	dir string
}

func NewRunlogHandler(dir string) *RunlogHandler {
	return &RunlogHandler{dir: dir}
}

// Handle serves GET /api/runlog.
func (h *RunlogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	path, err := runlog.Latest(h.dir)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no runs recorded", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to locate run log", "error", err)
		http.Error(w, "run log unavailable", http.StatusInternalServerError)
		return
	}

	samples, err := runlog.Read(path)
	if err != nil {
		slog.Error("Failed to parse run log", "path", path, "error", err)
		http.Error(w, "run log unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(samples); err != nil {
		slog.Error("Failed to encode run log", "error", err)
	}
}
