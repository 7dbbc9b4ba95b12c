// chambersim serves an AtmoWEB-compatible REST interface backed by the mock
// chamber, so the controller can be exercised end to end without hardware.
// Dynamics run faster than real time; a full heating cycle completes in about
// a minute at the default scale.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"thermoctl/pkg/chamber"
	"thermoctl/pkg/chamber/mock"
)

var (
	addr      = flag.String("addr", "localhost:8000", "Listen address")
	basePath  = flag.String("base-path", "/atmoweb", "URL path the device answers on")
	startTemp = flag.Float64("start-temp", 22.0, "Initial chamber temperature (°C)")
	timeScale = flag.Float64("time-scale", 100, "Time acceleration factor")
)

func main() {
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	ch := mock.New(mock.Config{
		StartTemp: *startTemp,
		Range:     chamber.Range{Min: 0, Max: 70},
		TimeScale: *timeScale,
	})
	defer ch.Close()

	mux := http.NewServeMux()
	mux.HandleFunc(*basePath, handler(ch))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("chamber simulator listening",
			"url", fmt.Sprintf("http://%s%s", *addr, *basePath),
			"time_scale", *timeScale)
		slog.Info("endpoints: ?Temp1Read=, ?TempSet_Range=, ?TempSet=XX, ?CurOp=, ?ProgExit=")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// handler answers AtmoWEB queries. All commands are GETs distinguished by
// which query parameters are present.
func handler(ch *mock.Chamber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ctx := r.Context()
		resp := map[string]any{}

		if q.Has("ProgExit") {
			if err := ch.ExitProgram(ctx); err != nil {
				sendJSON(w, map[string]any{"error": "ProgExit-failed"}, http.StatusInternalServerError)
				return
			}
			resp["ProgExit"] = "OK"
		}

		if q.Has("TempSet") {
			v, err := strconv.ParseFloat(q.Get("TempSet"), 64)
			if err != nil {
				sendJSON(w, map[string]any{"error": "bad-TempSet"}, http.StatusBadRequest)
				return
			}
			if err := ch.SetTarget(ctx, v); err != nil {
				sendJSON(w, map[string]any{"error": "set-failed"}, http.StatusInternalServerError)
				return
			}
			resp["TempSet"] = round2(ch.Setpoint())
		}

		temp, rng, err := ch.ReadState(ctx)
		if err != nil {
			sendJSON(w, map[string]any{"error": "read-failed"}, http.StatusInternalServerError)
			return
		}
		if q.Has("Temp1Read") {
			resp["Temp1Read"] = round2(temp)
		}
		if q.Has("TempSet_Range") {
			resp["TempSet_Range"] = rng
		}
		if q.Has("CurOp") {
			op, _ := ch.CurrentOp(ctx)
			resp["CurOp"] = op
		}

		// Bare GET acts as a heartbeat
		if len(resp) == 0 {
			resp["ok"] = true
			resp["Temp1Read"] = round2(temp)
		}

		sendJSON(w, resp, http.StatusOK)
	}
}

func sendJSON(w http.ResponseWriter, obj any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
