package thermal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinTau is the floor applied to the time constant wherever it appears as a
// divisor. Without it a transient excursion of tau toward zero makes the
// Jacobian explode.
const MinTau = 1e-3

// Model encodes Newton's law of cooling in discrete time for the 3-dimensional
// state x = [T, tau, Tinf]:
//
//	dT/dt = (Tinf - T) / tau
//
// T is the instantaneous chamber temperature (°C), tau the time constant
// (seconds) and Tinf the asymptotic temperature (°C). Only T has deterministic
// dynamics; tau and Tinf are constant plus process noise.
type Model struct{}

// Transition advances the state by dt seconds:
// T' = Tinf + (T - Tinf)·exp(-dt/tau), parameters pass through unchanged.
func (Model) Transition(x mat.Vector, dt float64) *mat.VecDense {
	t := x.AtVec(0)
	tau := math.Max(x.AtVec(1), MinTau)
	tinf := x.AtVec(2)

	a := math.Exp(-dt / tau)
	return mat.NewVecDense(3, []float64{tinf + (t-tinf)*a, tau, tinf})
}

// TransitionJacobian returns the 3x3 partial-derivative matrix of Transition.
// Rows 2 and 3 are identity: the parameters are modeled as constant.
func (Model) TransitionJacobian(x mat.Vector, dt float64) *mat.Dense {
	t := x.AtVec(0)
	tau := math.Max(x.AtVec(1), MinTau)
	tinf := x.AtVec(2)

	a := math.Exp(-dt / tau)
	return mat.NewDense(3, 3, []float64{
		a, (dt / (tau * tau)) * (t - tinf) * a, 1 - a,
		0, 1, 0,
		0, 0, 1,
	})
}

// Measure returns the predicted sensor reading: the sensor observes T directly.
func (Model) Measure(x mat.Vector) float64 {
	return x.AtVec(0)
}

// MeasureJacobian returns the 1x3 measurement Jacobian [1, 0, 0].
func (Model) MeasureJacobian(x mat.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{1, 0, 0})
}
