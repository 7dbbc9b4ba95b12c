package estimator

import (
	"math"
	"testing"

	"thermoctl/pkg/model"
)

// syntheticReadings generates noiseless first-order data
// T(t) = tinf + (t0-tinf)·exp(-t/tau) sampled every dt seconds.
func syntheticReadings(n int, t0, tinf, tau, dt float64) []model.Reading {
	readings := make([]model.Reading, n)
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		readings[i] = model.Reading{
			Timestamp:   t,
			Temperature: tinf + (t0-tinf)*math.Exp(-t/tau),
		}
	}
	return readings
}

func mustNew(t *testing.T, p Params) *Estimator {
	t.Helper()
	e, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestParamsValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"window too small", func(p *Params) { p.WindowSize = 1 }},
		{"zero threshold", func(p *Params) { p.OutlierThreshold = 0 }},
		{"zero tolerance", func(p *Params) { p.Tolerance = 0 }},
		{"zero R", func(p *Params) { p.RMeasurement = 0 }},
		{"negative P entry", func(p *Params) { p.PInit[1] = -1 }},
		{"zero Q entry", func(p *Params) { p.QProcess[2] = 0 }},
	}
	for _, tc := range cases {
		p := DefaultParams()
		tc.mutate(&p)
		if _, err := New(p); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestUpdateInsufficientData(t *testing.T) {
	e := mustNew(t, DefaultParams())

	if _, ok := e.Update(nil, 300, 40, 60); ok {
		t.Error("Update with no readings returned ok")
	}
	if _, ok := e.Update([]model.Reading{{Timestamp: 0, Temperature: 20}}, 300, 40, 60); ok {
		t.Error("Update with one reading returned ok")
	}
	if e.Initialized() {
		t.Error("filter initialized despite rejected updates")
	}
}

// TestConvergence feeds a growing stream of noiseless synthetic readings and
// expects tau and Tinf to land close to the generating values.
func TestConvergence(t *testing.T) {
	const (
		trueTau  = 600.0
		trueTinf = 40.0
		t0       = 20.0
		dt       = 60.0
	)
	readings := syntheticReadings(80, t0, trueTinf, trueTau, dt)

	e := mustNew(t, DefaultParams())
	var est model.Estimate
	var ok bool
	for k := 2; k <= len(readings); k++ {
		est, ok = e.Update(readings[:k], 300, trueTinf, dt)
		if !ok {
			t.Fatalf("update rejected at k=%d", k)
		}
	}

	if rel := math.Abs(est.Tau-trueTau) / trueTau; rel > 0.02 {
		t.Errorf("tau = %v, want within 2%% of %v (rel err %v)", est.Tau, trueTau, rel)
	}
	if rel := math.Abs(est.Tinf-trueTinf) / trueTinf; rel > 0.01 {
		t.Errorf("Tinf = %v, want within 1%% of %v (rel err %v)", est.Tinf, trueTinf, rel)
	}
}

// TestBatchDeterminism: two estimators given identical windows must produce
// identical estimates.
func TestBatchDeterminism(t *testing.T) {
	readings := syntheticReadings(20, 20, 40, 600, 60)

	a := mustNew(t, DefaultParams())
	b := mustNew(t, DefaultParams())

	estA, okA := a.Update(readings, 300, 40, 60)
	estB, okB := b.Update(readings, 300, 40, 60)

	if !okA || !okB {
		t.Fatal("update rejected")
	}
	if estA.Tau != estB.Tau || estA.Tinf != estB.Tinf || estA.T0 != estB.T0 {
		t.Errorf("identical inputs diverged: %+v vs %+v", estA, estB)
	}
}

func TestOutlierRejection(t *testing.T) {
	// Near-equilibrium window: tight spread so a 10°C glitch is unmistakable.
	readings := syntheticReadings(20, 38.5, 40, 600, 60)

	e := mustNew(t, DefaultParams())
	if _, ok := e.Update(readings, 600, 40, 60); !ok {
		t.Fatal("clean window rejected")
	}
	if !e.Initialized() {
		t.Fatal("filter not initialized after accepted update")
	}

	before := e.filter.State()

	glitch := append(append([]model.Reading{}, readings...), model.Reading{
		Timestamp:   20 * 60,
		Temperature: readings[len(readings)-1].Temperature + 10,
	})

	if _, ok := e.Update(glitch, 600, 40, 60); ok {
		t.Error("outlier window accepted")
	}

	after := e.filter.State()
	for i := 0; i < 3; i++ {
		if before.AtVec(i) != after.AtVec(i) {
			t.Errorf("state[%d] changed across rejected update: %v -> %v", i, before.AtVec(i), after.AtVec(i))
		}
	}
}

func TestOutlierGateNeedsSamples(t *testing.T) {
	e := mustNew(t, DefaultParams())

	// Four samples: too few for the MAD to judge, accept anything.
	window := []float64{20, 20.1, 20.2, 20.1}
	if e.isOutlier(window, 35) {
		t.Error("gate rejected with fewer than 5 samples")
	}

	window = append(window, 20.15)
	if !e.isOutlier(window, 35) {
		t.Error("gate accepted an obvious outlier with 5 samples")
	}
	if e.isOutlier(window, 20.12) {
		t.Error("gate rejected an in-trend sample")
	}
}

func TestRobustZFlatWindow(t *testing.T) {
	// Perfectly flat window: MAD is floored, not divided by zero.
	window := []float64{25, 25, 25, 25, 25}
	z := robustZ(window, 25)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		t.Errorf("robustZ on flat window = %v", z)
	}
}

func TestEstimateEta(t *testing.T) {
	e := mustNew(t, DefaultParams()) // tolerance 0.5

	// -tau·ln(tolerance/gap) for T=20, Tinf=40, tau=600
	want := -600 * math.Log(0.5/20.0)
	if got := e.EstimateEta(20, 40, 600); math.Abs(got-want) > 0.5 {
		t.Errorf("EstimateEta(20,40,600) = %v, want %v", got, want)
	}

	// Already within tolerance
	if got := e.EstimateEta(39.95, 40, 600); got != 0 {
		t.Errorf("EstimateEta(39.95,40,600) = %v, want 0", got)
	}

	// Cooling direction is symmetric
	wantCool := -600 * math.Log(0.5/15.0)
	if got := e.EstimateEta(40, 25, 600); math.Abs(got-wantCool) > 0.5 {
		t.Errorf("EstimateEta(40,25,600) = %v, want %v", got, wantCool)
	}
}

// TestScenario walks the documented five-reading heating scenario.
func TestScenario(t *testing.T) {
	readings := []model.Reading{
		{Timestamp: 0, Temperature: 20},
		{Timestamp: 60, Temperature: 25},
		{Timestamp: 120, Temperature: 29},
		{Timestamp: 180, Temperature: 32},
		{Timestamp: 240, Temperature: 34},
	}

	e := mustNew(t, DefaultParams())
	est, ok := e.Update(readings, 300, 40, 60)
	if !ok {
		t.Fatal("scenario update rejected")
	}

	if est.Tau <= 0 || math.IsInf(est.Tau, 0) || math.IsNaN(est.Tau) {
		t.Errorf("tau = %v, want positive finite", est.Tau)
	}
	if est.Tinf < 35 || est.Tinf > 45 {
		t.Errorf("Tinf = %v, want near 40", est.Tinf)
	}
	if est.T0 != 20 {
		t.Errorf("T0 = %v, want 20", est.T0)
	}

	eta := e.EstimateEta(34, est.Tinf, est.Tau)
	if eta <= 0 || math.IsInf(eta, 0) || math.IsNaN(eta) {
		t.Errorf("ETA = %v, want positive finite", eta)
	}
}

func TestClearResiduals(t *testing.T) {
	readings := syntheticReadings(20, 20, 40, 600, 60)
	e := mustNew(t, DefaultParams())

	est, ok := e.Update(readings, 300, 40, 60)
	if !ok {
		t.Fatal("update rejected")
	}
	if len(est.Residuals) == 0 {
		t.Fatal("expected residuals after update")
	}

	e.ClearResiduals()
	est, ok = e.Update(readings, 300, 40, 60)
	if !ok {
		t.Fatal("update rejected")
	}
	// Only the residuals of the fresh replay remain.
	if len(est.Residuals) != len(readings)-1 {
		t.Errorf("residuals after clear = %d, want %d", len(est.Residuals), len(readings)-1)
	}
}
