package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"thermoctl/pkg/history"
	"thermoctl/pkg/model"
)

const defaultHistoryLimit = 20

// HistoryHandler serves past runs from the history store.
type HistoryHandler struct {
	store *history.Store
}

func NewHistoryHandler(s *history.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// Handle serves GET /api/history?limit=N.
func (h *HistoryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.store.Recent(limit)
	if err != nil {
		slog.Error("Failed to load history", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		slog.Error("Failed to encode history", "error", err)
	}
}
