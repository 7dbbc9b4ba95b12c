package estimator

import (
	"math"

	"thermoctl/pkg/model"
)

// expWindowSize caps how much history the fallback fit looks at.
const expWindowSize = 10

// ExpEstimator is the non-filtering fallback: a fixed exponential model with
// Tinf pinned to the target and tau either taken from configuration or, when
// the window carries enough signal, refined by a least-squares fit on the
// log-transformed temperature gap. The driver selects it when the EKF model
// is disabled in configuration.
type ExpEstimator struct {
	Tolerance float64
}

// NewExpEstimator creates the fallback estimator.
func NewExpEstimator(tolerance float64) *ExpEstimator {
	return &ExpEstimator{Tolerance: tolerance}
}

// Update returns an estimate built from the trailing window. Unlike the EKF
// path it keeps no state between calls; ok=false only when the window is
// empty.
func (e *ExpEstimator) Update(readings []model.Reading, tauInit, target, dt float64) (model.Estimate, bool) {
	if len(readings) == 0 {
		return model.Estimate{}, false
	}

	window := readings
	if len(window) > expWindowSize {
		window = window[len(window)-expWindowSize:]
	}

	t0 := window[0].Temperature
	tau := e.fitTau(window, target, tauInit)

	return model.Estimate{Tau: tau, Tinf: target, T0: t0}, true
}

// EstimateEta returns the seconds until the temperature is within tolerance
// of Tinf.
func (e *ExpEstimator) EstimateEta(tCurrent, tInf, tau float64) float64 {
	return etaSeconds(tCurrent, tInf, tau, e.Tolerance)
}

// fitTau does linear least squares on ln|T(t)-Tinf| over the window. The
// slope of that line is -1/tau when the dynamics are first order. Samples too
// close to Tinf carry mostly noise and are excluded; if fewer than three
// usable points remain, the configured tau wins.
func (e *ExpEstimator) fitTau(window []model.Reading, target, tauInit float64) float64 {
	if len(window) < 3 {
		return tauInit
	}

	tinf := target
	t0 := window[0].Temperature
	minDelta := math.Max(e.Tolerance*2, 0.01)
	if math.Abs(t0-tinf) <= minDelta {
		return tauInit
	}

	base := window[0].Timestamp
	var ts, ys []float64
	for _, r := range window {
		if math.Abs(r.Temperature-tinf) <= minDelta {
			continue
		}
		ts = append(ts, r.Timestamp-base)
		ys = append(ys, math.Log(math.Abs((r.Temperature-tinf)/(t0-tinf))))
	}
	if len(ts) < 3 {
		return tauInit
	}

	n := float64(len(ts))
	var st, sy, st2, sty float64
	for i := range ts {
		st += ts[i]
		sy += ys[i]
		st2 += ts[i] * ts[i]
		sty += ts[i] * ys[i]
	}

	denom := n*st2 - st*st
	if math.Abs(denom) < 1e-9 {
		return tauInit
	}
	slope := (n*sty - st*sy) / denom
	if slope >= -1e-6 {
		return tauInit
	}
	return -1.0 / slope
}
