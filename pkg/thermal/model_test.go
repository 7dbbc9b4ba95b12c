package thermal

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestTransition(t *testing.T) {
	m := Model{}

	// T(t+dt) = Tinf + (T-Tinf)*exp(-dt/tau)
	x := mat.NewVecDense(3, []float64{20, 600, 40})
	got := m.Transition(x, 60)

	a := math.Exp(-60.0 / 600.0)
	want := 40 + (20-40)*a
	if diff := math.Abs(got.AtVec(0) - want); diff > 1e-12 {
		t.Errorf("Transition T = %v, want %v", got.AtVec(0), want)
	}

	// Parameters pass through unchanged
	if got.AtVec(1) != 600 || got.AtVec(2) != 40 {
		t.Errorf("Transition mutated parameters: got [%v %v]", got.AtVec(1), got.AtVec(2))
	}
}

func TestTransitionClampsTau(t *testing.T) {
	m := Model{}

	// A near-zero tau must be floored, not divided by
	x := mat.NewVecDense(3, []float64{20, 0, 40})
	got := m.Transition(x, 60)

	if got.AtVec(1) != MinTau {
		t.Errorf("tau not clamped: got %v, want %v", got.AtVec(1), MinTau)
	}
	if math.IsNaN(got.AtVec(0)) || math.IsInf(got.AtVec(0), 0) {
		t.Errorf("Transition produced non-finite T: %v", got.AtVec(0))
	}

	j := m.TransitionJacobian(x, 60)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			if math.IsNaN(j.At(i, k)) || math.IsInf(j.At(i, k), 0) {
				t.Errorf("Jacobian entry (%d,%d) non-finite: %v", i, k, j.At(i, k))
			}
		}
	}
}

// TestTransitionJacobian checks the analytic Jacobian against central finite
// differences at representative states.
func TestTransitionJacobian(t *testing.T) {
	m := Model{}

	states := [][3]float64{
		{20, 600, 40},
		{35, 300, 40},
		{60, 900, 25},
		{22, 120, 22.5},
	}
	const dt = 60.0
	const eps = 1e-5

	for _, s := range states {
		x := mat.NewVecDense(3, []float64{s[0], s[1], s[2]})
		jac := m.TransitionJacobian(x, dt)

		for col := 0; col < 3; col++ {
			hi := mat.NewVecDense(3, nil)
			lo := mat.NewVecDense(3, nil)
			hi.CloneFromVec(x)
			lo.CloneFromVec(x)

			step := eps * math.Max(1, math.Abs(x.AtVec(col)))
			hi.SetVec(col, x.AtVec(col)+step)
			lo.SetVec(col, x.AtVec(col)-step)

			fHi := m.Transition(hi, dt)
			fLo := m.Transition(lo, dt)

			for row := 0; row < 3; row++ {
				numeric := (fHi.AtVec(row) - fLo.AtVec(row)) / (2 * step)
				analytic := jac.At(row, col)

				scale := math.Max(math.Abs(analytic), math.Abs(numeric))
				if scale < 1e-8 {
					continue
				}
				if rel := math.Abs(analytic-numeric) / scale; rel > 1e-4 {
					t.Errorf("state %v: Jacobian(%d,%d) = %v, finite diff %v (rel err %v)",
						s, row, col, analytic, numeric, rel)
				}
			}
		}
	}
}

func TestMeasure(t *testing.T) {
	m := Model{}

	x := mat.NewVecDense(3, []float64{23.5, 600, 40})
	if got := m.Measure(x); got != 23.5 {
		t.Errorf("Measure = %v, want 23.5", got)
	}

	h := m.MeasureJacobian(x)
	want := []float64{1, 0, 0}
	for i, w := range want {
		if h.AtVec(i) != w {
			t.Errorf("MeasureJacobian[%d] = %v, want %v", i, h.AtVec(i), w)
		}
	}
}
