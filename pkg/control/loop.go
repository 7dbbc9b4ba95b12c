// Package control drives the chamber through its configured setpoints: it
// commands the target, polls the temperature, feeds the estimator, logs
// samples, and decides when the run is done.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"thermoctl/pkg/chamber"
	"thermoctl/pkg/config"
	"thermoctl/pkg/estimator"
	"thermoctl/pkg/history"
	"thermoctl/pkg/model"
	"thermoctl/pkg/runlog"
	"thermoctl/pkg/smoothing"
)

// Notifier receives live samples, e.g. for the websocket stream.
type Notifier interface {
	Notify(s model.Sample)
}

// State describes what the loop is currently doing.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateWaiting State = "waiting"
	StateDone    State = "done"
)

// Status is a snapshot of the loop for the status endpoint.
type Status struct {
	State       State        `json:"state"`
	Target      float64      `json:"target"`
	StartTemp   float64      `json:"start_temp"`
	Mode        model.Mode   `json:"mode,omitempty"`
	EtaModel    string       `json:"eta_model"`
	LastSample  model.Sample `json:"last_sample"`
	StartedAt   time.Time    `json:"started_at"`
	SetIndex    int          `json:"set_index"`
	LastLogLine string       `json:"last_log_line,omitempty"`
}

// Result summarizes a finished setpoint run.
type Result struct {
	StartTemp float64
	Target    float64
	Mode      model.Mode
	FinalTau  float64 // seconds
	Samples   int
	Duration  time.Duration
}

// Loop runs the control sequence for one process.
type Loop struct {
	cfg      *config.Config
	cfgPath  string
	client   chamber.Client
	source   estimator.Source
	store    *history.Store // optional
	notifier Notifier       // optional

	mu     sync.RWMutex
	status Status
}

// New creates a control loop. store and notifier may be nil.
func New(cfg *config.Config, cfgPath string, client chamber.Client, source estimator.Source, store *history.Store, notifier Notifier) *Loop {
	return &Loop{
		cfg:      cfg,
		cfgPath:  cfgPath,
		client:   client,
		source:   source,
		store:    store,
		notifier: notifier,
		status: Status{
			State:    StateIdle,
			Target:   cfg.Target(),
			EtaModel: cfg.EtaModel.Model,
			SetIndex: cfg.Device.CurrentSetIndex,
		},
	}
}

// Status returns a snapshot for the API.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) setStatus(update func(*Status)) {
	l.mu.Lock()
	update(&l.status)
	l.mu.Unlock()
}

// EnsureManualMode verifies the device accepts manual setpoints. When the
// device is running a program, auto_abort decides whether we may kick it out.
func (l *Loop) EnsureManualMode(ctx context.Context) error {
	op, err := l.client.CurrentOp(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(op, "Manual") {
		return nil
	}
	slog.Warn("device not in manual mode", "mode", op)
	if !l.cfg.Device.AutoAbort {
		return fmt.Errorf("device is in mode %q and auto_abort is disabled", op)
	}

	slog.Info("aborting current device program")
	if err := l.client.ExitProgram(ctx); err != nil {
		return err
	}
	// Give the device time to switch
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	op, err = l.client.CurrentOp(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(op, "Manual") {
		return fmt.Errorf("device did not switch to manual mode (CurOp=%q)", op)
	}
	return nil
}

// tauInit picks the initial time constant for a run direction, in seconds.
// Config carries the last learned value; the history store's median wins when
// enough runs are recorded, smoothing over one bad estimate.
func (l *Loop) tauInit(mode model.Mode) float64 {
	cfgTau := l.cfg.EtaModel.TauHeating.Seconds()
	if mode == model.ModeCooling {
		cfgTau = l.cfg.EtaModel.TauCooling.Seconds()
	}
	if l.store == nil {
		return cfgTau
	}
	med, ok, err := l.store.MedianTau(mode)
	if err != nil {
		slog.Warn("history median unavailable", "error", err)
		return cfgTau
	}
	if ok {
		slog.Debug("seeding tau from history", "mode", mode, "median_s", med)
		return med
	}
	return cfgTau
}

// RunSetpoint executes the control loop for the configured setpoint and
// returns a summary of the run.
func (l *Loop) RunSetpoint(ctx context.Context) (*Result, error) {
	target := l.cfg.Target()
	tol := l.cfg.Device.Tolerance

	cur, rng, err := l.client.ReadState(ctx)
	if err != nil {
		return nil, err
	}
	if !rng.Contains(target) {
		return nil, fmt.Errorf("target %g°C outside valid range [%g,%g]", target, rng.Min, rng.Max)
	}
	slog.Info("starting run", "target", target, "current", cur, "tolerance", tol,
		"range_min", rng.Min, "range_max", rng.Max, "model", l.cfg.EtaModel.Model)

	if err := l.client.SetTarget(ctx, target); err != nil {
		return nil, err
	}

	startTemp := cur
	mode := model.ModeFor(startTemp, target)
	startedAt := time.Now()
	tauEst := l.tauInit(mode)
	tauLast := tauEst
	tinfShow := target
	tauSmooth := smoothing.NewRollingMedian(l.cfg.EtaModel.TauSmoothing)

	writer, err := runlog.Create(l.cfg.Logging.RunLogDir, runlog.Meta{
		StartedAt: startedAt,
		StartTemp: startTemp,
		Target:    target,
		Mode:      mode,
		EtaModel:  l.cfg.EtaModel.Model,
		Tolerance: tol,
		PollEvery: time.Duration(l.cfg.Device.PollInterval),
		Range:     [2]float64{rng.Min, rng.Max},
	})
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	l.setStatus(func(s *Status) {
		s.State = StateRunning
		s.Target = target
		s.StartTemp = startTemp
		s.Mode = mode
		s.StartedAt = startedAt
	})

	pollEvery := time.Duration(l.cfg.Device.PollInterval)
	logEvery := time.Duration(l.cfg.Logging.LogInterval)
	if logEvery <= 0 {
		logEvery = pollEvery
	}
	dt := pollEvery.Seconds()

	var readings []model.Reading
	var sampleCount int
	lastLog := startedAt.Add(-logEvery) // log the first sample immediately
	nextPoll := startedAt

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Now()

		if !now.Before(nextPoll) {
			cur, _, err = l.client.ReadState(ctx)
			if err != nil {
				return nil, err
			}
			readings = append(readings, model.Reading{Timestamp: now.Sub(startedAt).Seconds(), Temperature: cur})

			est, ok := l.source.Update(readings, tauEst, target, dt)
			etaKnown := false
			var eta float64
			if ok {
				tauSmooth.Push(est.Tau)
				tau := tauSmooth.Median()
				tinfShow = est.Tinf
				if tau > 0.1 {
					tauEst = tau
				}
				tauLast = tau
				eta = l.source.EstimateEta(cur, est.Tinf, tau)
				etaKnown = true
			}

			elapsed := now.Sub(startedAt).Seconds()
			sample := model.Sample{
				Time:        now,
				Elapsed:     elapsed,
				Temperature: cur,
				ETA:         eta,
				ETAKnown:    etaKnown,
				Tau:         tauLast,
				Tinf:        tinfShow,
				Progress:    progressPct(cur, target, startTemp),
			}
			sampleCount++

			slog.Info(fmt.Sprintf("%s %s", ProgressBar(cur, target, startTemp, 20), etaString(sample)),
				"temp", fmt.Sprintf("%.2f", cur),
				"tau_s", fmt.Sprintf("%.1f", tauLast),
				"tinf", fmt.Sprintf("%.2f", tinfShow))

			l.setStatus(func(s *Status) { s.LastSample = sample })
			if l.notifier != nil {
				l.notifier.Notify(sample)
			}
			if now.Sub(lastLog) >= logEvery {
				if err := writer.Append(sample); err != nil {
					slog.Warn("run log write failed", "error", err)
				}
				lastLog = now
			}

			// Hybrid criterion: within tolerance of the estimated asymptote
			// AND at least five time constants elapsed.
			if math.Abs(cur-tinfShow) <= tol && elapsed >= 5*tauLast {
				slog.Info("target reached", "tinf", fmt.Sprintf("%.2f", tinfShow),
					"elapsed_s", fmt.Sprintf("%.0f", elapsed))
				break
			}

			nextPoll = nextPoll.Add(pollEvery)
			if !nextPoll.After(now) {
				nextPoll = now.Add(pollEvery)
			}
		}

		sleep := time.Until(nextPoll)
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Hold at the target so the chamber settles before anything else happens.
	l.setStatus(func(s *Status) { s.State = StateWaiting })
	wait := time.Duration(l.cfg.Device.Wait)
	if wait > 0 {
		slog.Info("holding at target", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res := &Result{
		StartTemp: startTemp,
		Target:    target,
		Mode:      mode,
		FinalTau:  tauLast,
		Samples:   sampleCount,
		Duration:  time.Since(startedAt),
	}
	l.finishRun(startedAt, res)
	l.setStatus(func(s *Status) { s.State = StateDone })
	return res, nil
}

// finishRun persists the run record and writes learned state back to the
// config file.
func (l *Loop) finishRun(startedAt time.Time, res *Result) {
	if l.store != nil {
		rec := &model.RunRecord{
			StartedAt: startedAt,
			StartTemp: res.StartTemp,
			Target:    res.Target,
			Mode:      res.Mode,
			FinalTau:  res.FinalTau,
			EtaModel:  l.cfg.EtaModel.Model,
			Samples:   res.Samples,
		}
		if err := l.store.Insert(rec); err != nil {
			slog.Warn("failed to record run history", "error", err)
		}
	}

	// Learned tau is only persisted for runs starting from the first
	// setpoint, i.e. from a known ambient state.
	updateTau := l.cfg.EtaModel.TauOverride && l.cfg.Device.CurrentSetIndex == 0
	if updateTau {
		slog.Info("persisting learned tau", "mode", res.Mode, "tau_s", fmt.Sprintf("%.1f", res.FinalTau))
	}
	if l.cfgPath == "" {
		return
	}
	err := config.ApplyRunResult(l.cfgPath, config.RunResult{
		NextIndex: l.cfg.NextSetIndex(),
		Heating:   res.Mode == model.ModeHeating,
		Tau:       config.FromSeconds(res.FinalTau),
		Info:      fmt.Sprintf("Updated %s | Start T=%.1f°C", startedAt.Format("2006-01-02 15:04:05"), res.StartTemp),
		UpdateTau: updateTau,
	})
	if err != nil {
		slog.Warn("config write-back failed", "error", err)
	}
}

func etaString(s model.Sample) string {
	if !s.ETAKnown || s.ETA <= 0 {
		return "ETA ~--"
	}
	return fmt.Sprintf("ETA ~%s", (time.Duration(s.ETA) * time.Second).Round(time.Second))
}

func progressPct(cur, target, start float64) float64 {
	if math.Abs(target-start) < 1e-6 {
		return 100.0
	}
	p := (cur - start) / (target - start)
	return 100.0 * math.Max(0, math.Min(1, p))
}
