package ssa

import "gonum.org/v1/gonum/stat/distuv"

// directMethod is the classic direct (first-family Gillespie) variant:
// every step re-evaluates all propensities, draws the waiting time from
// Exp(a0), and selects the firing reaction by an inverse-CDF scan.
type directMethod struct{}

func (directMethod) prepare(*Simulator) error { return nil }

func (directMethod) begin(*worker, *realization) error { return nil }

func (d directMethod) advance(w *worker, r *realization, target float64) error {
	s := w.sim
	for {
		if err := w.itAll.Eval(r.x, r.a); err != nil {
			return err
		}
		a0, err := sum(r.a)
		if err != nil {
			return err
		}
		if a0 <= 0 {
			r.frozen = true
			r.t = target
			return nil
		}
		tau := distuv.Exponential{Rate: a0, Src: w.src}.Rand()
		if r.t+tau > target {
			r.t = target
			return nil
		}
		mu := selectReaction(w, r.a, a0)
		s.applyStoich(r, mu)
		r.t += tau
	}
}

// selectReaction draws the firing reaction index with probability
// a[mu]/a0 by inverse-CDF scan.
func selectReaction(w *worker, a []float64, a0 float64) int {
	u := w.rng.Float64() * a0
	cum := 0.0
	for j, v := range a {
		cum += v
		if u < cum {
			return j
		}
	}
	return len(a) - 1
}
