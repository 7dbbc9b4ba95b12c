// Package estimator adapts the generic EKF to thermal-chamber estimation:
// rolling-window batch processing, robust outlier rejection and ETA
// computation on top of the filtered state.
package estimator

import (
	"fmt"
	"math"

	"thermoctl/pkg/ekf"
	"thermoctl/pkg/model"
	"thermoctl/pkg/thermal"
)

// Params holds the tunable knobs of the estimator. All values come from
// configuration; DefaultParams matches a well-behaved lab chamber.
type Params struct {
	WindowSize       int        // Samples in the rolling estimation window
	OutlierThreshold float64    // Robust z-score threshold
	Tolerance        float64    // °C band around Tinf considered "arrived"
	PInit            [3]float64 // Initial covariance diagonal [T, tau, Tinf]
	QProcess         [3]float64 // Process noise diagonal [T, tau, Tinf]
	RMeasurement     float64    // Sensor variance
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		WindowSize:       20,
		OutlierThreshold: 4.0,
		Tolerance:        0.5,
		PInit:            [3]float64{10.0, 2.0, 5.0},
		QProcess:         [3]float64{0.0025, 0.001, 0.004},
		RMeasurement:     0.01,
	}
}

func (p Params) validate() error {
	if p.WindowSize < 2 {
		return fmt.Errorf("estimator: window size must be at least 2, got %d", p.WindowSize)
	}
	if p.OutlierThreshold <= 0 {
		return fmt.Errorf("estimator: outlier threshold must be positive, got %v", p.OutlierThreshold)
	}
	if p.Tolerance <= 0 {
		return fmt.Errorf("estimator: tolerance must be positive, got %v", p.Tolerance)
	}
	if p.RMeasurement <= 0 {
		return fmt.Errorf("estimator: measurement variance must be positive, got %v", p.RMeasurement)
	}
	for i, v := range p.PInit {
		if v <= 0 {
			return fmt.Errorf("estimator: P_init[%d] must be positive, got %v", i, v)
		}
	}
	for i, v := range p.QProcess {
		if v <= 0 {
			return fmt.Errorf("estimator: Q_process[%d] must be positive, got %v", i, v)
		}
	}
	return nil
}

// Source produces estimates from a reading stream. Both the EKF estimator and
// the exponential fallback satisfy it.
type Source interface {
	Update(readings []model.Reading, tauInit, target, dt float64) (model.Estimate, bool)
	EstimateEta(tCurrent, tInf, tau float64) float64
}

// Estimator runs a persistent 3-state EKF over a trailing window of readings.
// The filter is constructed on the first update that passes the data and
// outlier gates and then accumulates evidence for the rest of the run; a new
// run needs a new Estimator.
type Estimator struct {
	params Params
	mdl    thermal.Model
	filter *ekf.Filter
}

// New creates an estimator for a single setpoint run.
func New(p Params) (*Estimator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Estimator{params: p}, nil
}

// Initialized reports whether the underlying filter has been constructed.
// The lifecycle is deliberately two-state and observable: uninitialized until
// the first accepted window, initialized for the rest of the run.
func (e *Estimator) Initialized() bool {
	return e.filter != nil
}

// Update processes the trailing window of readings and returns the current
// estimate. It returns ok=false, leaving all filter state untouched, when
// there are fewer than two readings or when the newest sample fails the
// outlier gate.
//
// Each call replays predict+update over every consecutive pair in the window,
// not just the newest sample. Re-smoothing against overlapping windows costs
// extra arithmetic but recovers quickly from a bad initialization.
func (e *Estimator) Update(readings []model.Reading, tauInit, target, dt float64) (model.Estimate, bool) {
	if len(readings) < 2 {
		return model.Estimate{}, false
	}

	window := readings
	if len(window) > e.params.WindowSize {
		window = window[len(window)-e.params.WindowSize:]
	}

	temps := make([]float64, len(window))
	for i, r := range window {
		temps[i] = r.Temperature
	}

	if e.isOutlier(temps, temps[len(temps)-1]) {
		return model.Estimate{}, false
	}

	if e.filter == nil {
		f, err := ekf.New(
			[]float64{temps[0], tauInit, target},
			e.params.PInit[:],
			e.params.QProcess[:],
			e.params.RMeasurement,
		)
		if err != nil {
			// Params are validated in New, so this is unreachable with a
			// properly constructed Estimator.
			return model.Estimate{}, false
		}
		e.filter = f
	}

	for i := 1; i < len(temps); i++ {
		e.filter.Predict(e.mdl, dt)
		e.filter.Update(e.mdl, temps[i])
	}

	x := e.filter.State()
	return model.Estimate{
		Tau:       math.Max(x.AtVec(1), thermal.MinTau),
		Tinf:      x.AtVec(2),
		T0:        temps[0],
		Residuals: e.filter.Residuals(),
	}, true
}

// EstimateEta returns the seconds until the temperature is within tolerance
// of Tinf, assuming first-order decay. Zero when already inside the band.
func (e *Estimator) EstimateEta(tCurrent, tInf, tau float64) float64 {
	return etaSeconds(tCurrent, tInf, tau, e.params.Tolerance)
}

// ClearResiduals drops the accumulated residual history of the filter.
func (e *Estimator) ClearResiduals() {
	if e.filter != nil {
		e.filter.ClearResiduals()
	}
}

func etaSeconds(tCurrent, tInf, tau, tolerance float64) float64 {
	gap := math.Abs(tCurrent - tInf)
	if gap < tolerance {
		return 0
	}
	// Solve tolerance = gap·exp(-eta/tau) for eta.
	return math.Max(0, -tau*math.Log(tolerance/gap))
}
