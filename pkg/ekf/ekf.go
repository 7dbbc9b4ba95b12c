// Package ekf implements a generic Extended Kalman Filter for models with a
// scalar measurement. The filter is model-agnostic: the process and
// measurement functions, together with their Jacobians, are injected through
// the Model interface.
package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"thermoctl/pkg/model"
)

// covFloor is applied to every covariance entry after predict and update.
// Together with symmetrization it keeps P well conditioned across long runs.
const covFloor = 1e-6

// Model is the contract a process model must satisfy.
type Model interface {
	// Transition propagates the state by dt seconds.
	Transition(x mat.Vector, dt float64) *mat.VecDense
	// TransitionJacobian returns the partial derivatives of Transition.
	TransitionJacobian(x mat.Vector, dt float64) *mat.Dense
	// Measure returns the predicted scalar measurement for a state.
	Measure(x mat.Vector) float64
	// MeasureJacobian returns the measurement Jacobian as a vector.
	MeasureJacobian(x mat.Vector) *mat.VecDense
}

// Filter holds the state estimate and its covariance.
// A Filter is owned by a single run and is not safe for concurrent use.
type Filter struct {
	x *mat.VecDense
	p *mat.Dense
	q *mat.Dense
	r float64

	residuals []model.Residual
}

// New creates a filter from an initial state, initial covariance diagonal,
// process noise diagonal and scalar measurement variance. Non-positive noise
// entries are a configuration fault, not a runtime condition, and are
// rejected outright.
func New(x0, pDiag, qDiag []float64, r float64) (*Filter, error) {
	n := len(x0)
	if n == 0 {
		return nil, fmt.Errorf("ekf: empty initial state")
	}
	if len(pDiag) != n || len(qDiag) != n {
		return nil, fmt.Errorf("ekf: dimension mismatch: state %d, P %d, Q %d", n, len(pDiag), len(qDiag))
	}
	if r <= 0 {
		return nil, fmt.Errorf("ekf: measurement variance must be positive, got %v", r)
	}

	p := mat.NewDense(n, n, nil)
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		if pDiag[i] <= 0 {
			return nil, fmt.Errorf("ekf: initial covariance entry %d must be positive, got %v", i, pDiag[i])
		}
		if qDiag[i] <= 0 {
			return nil, fmt.Errorf("ekf: process noise entry %d must be positive, got %v", i, qDiag[i])
		}
		p.Set(i, i, pDiag[i])
		q.Set(i, i, qDiag[i])
	}

	x := mat.NewVecDense(n, nil)
	copy(x.RawVector().Data, x0)

	return &Filter{x: x, p: p, q: q, r: r}, nil
}

// Predict propagates state and covariance by dt seconds:
// x ← f(x, dt), P ← F·P·Fᵗ + Q.
//
// The Jacobian is evaluated at the post-transition state, matching the
// behavior this filter was validated against. Textbook EKF linearizes at the
// prior state instead; for the slow dynamics handled here the difference is
// below sensor noise.
func (f *Filter) Predict(m Model, dt float64) {
	f.x = m.Transition(f.x, dt)

	jac := m.TransitionJacobian(f.x, dt)

	var fp, fpft mat.Dense
	fp.Mul(jac, f.p)
	fpft.Mul(&fp, jac.T())
	fpft.Add(&fpft, f.q)
	f.p = &fpft

	f.condition()
}

// Update corrects the state with a scalar measurement and records the
// residual for diagnostics.
func (f *Filter) Update(m Model, z float64) {
	h := m.Measure(f.x)
	jac := m.MeasureJacobian(f.x)

	y := z - h

	// S = H·P·Hᵗ + R; scalar because the measurement is 1-D,
	// so the gain needs no matrix inversion.
	var ph mat.VecDense
	ph.MulVec(f.p, jac)
	s := mat.Dot(jac, &ph) + f.r

	// K = P·Hᵗ / S
	k := mat.NewVecDense(ph.Len(), nil)
	k.ScaleVec(1/s, &ph)

	f.x.AddScaledVec(f.x, y, k)

	// P ← P − K·Kᵗ·S
	var kks mat.Dense
	kks.Outer(s, k, k)
	f.p.Sub(f.p, &kks)

	f.condition()

	f.residuals = append(f.residuals, model.Residual{Innovation: y, S: s, R: f.r})
}

// condition restores symmetry and floors every entry of P. Called after every
// predict and update; this is what keeps P invertible despite accumulated
// floating-point asymmetry.
func (f *Filter) condition() {
	n, _ := f.p.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (f.p.At(i, j) + f.p.At(j, i))
			if v < covFloor {
				v = covFloor
			}
			f.p.Set(i, j, v)
			f.p.Set(j, i, v)
		}
	}
}

// State returns a copy of the current state estimate.
func (f *Filter) State() *mat.VecDense {
	out := mat.NewVecDense(f.x.Len(), nil)
	out.CloneFromVec(f.x)
	return out
}

// SetState replaces the state estimate.
func (f *Filter) SetState(x *mat.VecDense) {
	f.x.CloneFromVec(x)
}

// Covariance returns a copy of the current covariance matrix.
func (f *Filter) Covariance() *mat.Dense {
	var out mat.Dense
	out.CloneFrom(f.p)
	return &out
}

// Residuals returns a copy of the residual history.
func (f *Filter) Residuals() []model.Residual {
	out := make([]model.Residual, len(f.residuals))
	copy(out, f.residuals)
	return out
}

// ClearResiduals discards the residual history.
func (f *Filter) ClearResiduals() {
	f.residuals = nil
}
