package api

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer creates and configures the HTTP server for the live view.
// It accepts handlers for the API endpoints and a shutdown function for
// graceful shutdown.
func NewServer(addr string, status *StatusHandler, hist *HistoryHandler, rl *RunlogHandler, live *LiveHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/status", status.Handle)

	if hist != nil {
		mux.HandleFunc("GET /api/history", hist.Handle)
	}
	if rl != nil {
		mux.HandleFunc("GET /api/runlog", rl.Handle)
	}
	if live != nil {
		mux.HandleFunc("GET /api/live", live.Handle)
	}

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow the response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}
