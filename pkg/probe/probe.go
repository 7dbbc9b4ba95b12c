// Package probe runs startup checks before the control loop takes over a
// chamber: device reachability, writable log locations, history storage.
// Critical failures abort startup; optional ones are logged and skipped.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// checkTimeout bounds each individual check so a wedged device cannot
// stall startup.
const checkTimeout = 5 * time.Second

// CheckFunc performs one startup check, returning nil on success.
type CheckFunc func(ctx context.Context) error

// Probe is a named startup check. Critical marks checks whose failure
// must prevent the run from starting.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool
}

// Result pairs a probe with its outcome.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(checkCtx)
		cancel()
		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs every outcome and returns the joined errors of the
// failed critical probes, or nil when startup may proceed.
func AnalyzeResults(results []Result) error {
	var critical []error
	for _, r := range results {
		took := r.Duration.Round(time.Millisecond)
		if r.Error == nil {
			slog.Info("startup check passed", "check", r.Probe.Name, "took", took)
			continue
		}
		slog.Error("startup check failed", "check", r.Probe.Name, "took", took, "error", r.Error)
		if r.Probe.Critical {
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		}
	}
	return errors.Join(critical...)
}
