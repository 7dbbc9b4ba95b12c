package estimator

import (
	"math"
	"testing"

	"thermoctl/pkg/model"
)

func TestExpEstimatorFitsTau(t *testing.T) {
	// Noiseless data: the log-space least-squares fit recovers tau exactly.
	const trueTau = 300.0
	readings := syntheticReadings(10, 20, 40, trueTau, 60)

	e := NewExpEstimator(0.5)
	est, ok := e.Update(readings, 900, 40, 60)
	if !ok {
		t.Fatal("update rejected")
	}

	if rel := math.Abs(est.Tau-trueTau) / trueTau; rel > 0.01 {
		t.Errorf("fitted tau = %v, want within 1%% of %v", est.Tau, trueTau)
	}
	if est.Tinf != 40 {
		t.Errorf("Tinf = %v, want pinned to target 40", est.Tinf)
	}
	if est.T0 != 20 {
		t.Errorf("T0 = %v, want 20", est.T0)
	}
}

func TestExpEstimatorFallsBackToConfiguredTau(t *testing.T) {
	// Window already at the target: nothing to fit, configured tau wins.
	readings := []model.Reading{
		{Timestamp: 0, Temperature: 39.99},
		{Timestamp: 60, Temperature: 40.0},
		{Timestamp: 120, Temperature: 40.01},
		{Timestamp: 180, Temperature: 40.0},
	}

	e := NewExpEstimator(0.5)
	est, ok := e.Update(readings, 720, 40, 60)
	if !ok {
		t.Fatal("update rejected")
	}
	if est.Tau != 720 {
		t.Errorf("tau = %v, want configured 720", est.Tau)
	}
}

func TestExpEstimatorEmptyWindow(t *testing.T) {
	e := NewExpEstimator(0.5)
	if _, ok := e.Update(nil, 300, 40, 60); ok {
		t.Error("empty window returned ok")
	}
}

func TestExpEstimatorEta(t *testing.T) {
	e := NewExpEstimator(0.5)

	want := -300 * math.Log(0.5/10.0)
	if got := e.EstimateEta(30, 40, 300); math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateEta = %v, want %v", got, want)
	}
	if got := e.EstimateEta(40.2, 40, 300); got != 0 {
		t.Errorf("EstimateEta inside tolerance = %v, want 0", got)
	}
}
