// Package mock provides an in-process chamber with first-order thermal
// dynamics for development and tests without hardware.
package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"thermoctl/pkg/chamber"
)

const (
	tickRate = 100 * time.Millisecond

	// Time constant midpoints in minutes; a per-run jitter is applied so the
	// estimator has something to learn.
	tauHeatMin = 8.0
	tauHeatMax = 14.0
	tauCoolMin = 10.0
	tauCoolMax = 18.0
	tauJitter  = 0.15

	// Ambient pull drifts around the setpoint within this bound.
	driftMax  = 0.3  // °C
	driftStep = 0.05 // °C per drift update
)

// Config holds the mock chamber settings.
type Config struct {
	StartTemp float64
	Range     chamber.Range
	// TimeScale accelerates dynamics, e.g. 100 makes a 100-minute run take
	// about a minute. Zero means real time.
	TimeScale float64
}

// Chamber implements chamber.Client.
type Chamber struct {
	mu        sync.Mutex
	temp      float64
	setpoint  float64
	rng       chamber.Range
	curOp     string
	timeScale float64
	tau       float64 // minutes, redrawn on each setpoint change

	drift         float64
	lastDriftTick time.Time
	stopCh        chan struct{}
	wg            sync.WaitGroup
	random        *rand.Rand
}

// New creates a mock chamber and starts its physics loop.
func New(cfg Config) *Chamber {
	if cfg.Range == (chamber.Range{}) {
		cfg.Range = chamber.Range{Min: 0, Max: 70}
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	m := &Chamber{
		temp:      cfg.StartTemp,
		setpoint:  cfg.StartTemp,
		rng:       cfg.Range,
		curOp:     "Manual",
		timeScale: cfg.TimeScale,
		stopCh:    make(chan struct{}),
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.tau = m.pickTau(false)
	m.wg.Add(1)
	go m.physicsLoop()
	return m
}

func (m *Chamber) physicsLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds() * m.timeScale
			last = now
			m.step(dt, now)
		}
	}
}

// step advances the exponential approach toward a drifting ambient pull.
func (m *Chamber) step(dt float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tauS := m.tau * 60.0
	tInf := m.ambient(now)
	a := math.Exp(-dt / math.Max(0.1, tauS))
	m.temp = tInf + (m.temp-tInf)*a
}

// pickTau draws the run's time constant. It is called once per setpoint
// change so tau behaves like an unknown plant constant, not per-tick noise.
func (m *Chamber) pickTau(heating bool) float64 {
	base := (tauCoolMin + tauCoolMax) / 2
	if heating {
		base = (tauHeatMin + tauHeatMax) / 2
	}
	jitter := 1.0 + (m.random.Float64()*2-1)*tauJitter
	return math.Max(0.1, base*jitter)
}

// ambient is the setpoint perturbed by slow bounded drift.
func (m *Chamber) ambient(now time.Time) float64 {
	driftInterval := time.Duration(float64(30*time.Second) / m.timeScale)
	if now.Sub(m.lastDriftTick) > driftInterval {
		m.drift += (m.random.Float64()*2 - 1) * driftStep
		m.drift = math.Max(-driftMax, math.Min(driftMax, m.drift))
		m.lastDriftTick = now
	}
	t := m.setpoint + m.drift
	return math.Max(m.rng.Min, math.Min(m.rng.Max, t))
}

// ReadState implements chamber.Client.
func (m *Chamber) ReadState(ctx context.Context) (float64, chamber.Range, error) {
	if err := ctx.Err(); err != nil {
		return 0, chamber.Range{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.temp, m.rng, nil
}

// SetTarget implements chamber.Client. Setpoints are clamped to the range
// like the real device does.
func (m *Chamber) SetTarget(ctx context.Context, temp float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setpoint = math.Max(m.rng.Min, math.Min(m.rng.Max, temp))
	m.tau = m.pickTau(m.setpoint > m.temp)
	return nil
}

// Setpoint returns the current (possibly clamped) setpoint.
func (m *Chamber) Setpoint() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setpoint
}

// CurrentOp implements chamber.Client.
func (m *Chamber) CurrentOp(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curOp, nil
}

// SetCurrentOp overrides the reported operating mode, for tests exercising
// the manual-mode check.
func (m *Chamber) SetCurrentOp(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curOp = op
}

// ExitProgram implements chamber.Client.
func (m *Chamber) ExitProgram(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curOp = "Manual"
	return nil
}

// Close stops the physics loop.
func (m *Chamber) Close() error {
	close(m.stopCh)
	m.wg.Wait()
	return nil
}
