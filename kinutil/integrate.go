package kinutil

import "github.com/spatialmodel/kinetics/ode"

// rk4 advances state from t to t+dt with n classical Runge-Kutta
// substeps. The time-course driver only needs a fixed-step integrator:
// the stiff cases are the steady-state solver's territory, and the
// stepper contract is all the core promises (the production stiff
// integrator is an external collaborator).
type rk4 struct {
	k1, k2, k3, k4, tmp []float64
}

func newRK4(dim int) *rk4 {
	return &rk4{
		k1:  make([]float64, dim),
		k2:  make([]float64, dim),
		k3:  make([]float64, dim),
		k4:  make([]float64, dim),
		tmp: make([]float64, dim),
	}
}

func (r *rk4) step(f *ode.SSEFunc, state []float64, t, dt float64, n int) error {
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	for s := 0; s < n; s++ {
		ts := t + float64(s)*h
		if err := f.Evaluate(state, ts, r.k1); err != nil {
			return err
		}
		r.axpy(state, r.k1, h/2)
		if err := f.Evaluate(r.tmp, ts+h/2, r.k2); err != nil {
			return err
		}
		r.axpy(state, r.k2, h/2)
		if err := f.Evaluate(r.tmp, ts+h/2, r.k3); err != nil {
			return err
		}
		r.axpy(state, r.k3, h)
		if err := f.Evaluate(r.tmp, ts+h, r.k4); err != nil {
			return err
		}
		for i := range state {
			state[i] += h / 6 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
		}
	}
	return nil
}

// axpy writes state + a·k into the scratch buffer.
func (r *rk4) axpy(state, k []float64, a float64) {
	for i := range state {
		r.tmp[i] = state[i] + a*k[i]
	}
}
