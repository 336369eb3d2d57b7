package ssa

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// nextReactionMethod maintains, per realization, a vector of absolute
// candidate firing times τ_j. Each step fires the reaction with the
// smallest τ, then redraws only the τ_j of reactions the dependency
// graph flags, as τ_j = t − ln(U)/a_j with the freshly recomputed
// propensity. (Redrawing rather than rescaling is the sanctioned
// simplification of the full Gibson–Bruck reuse trick.) All τ are
// redrawn at the start of each Run, which is statistically neutral by
// the memorylessness of the exponential.
type nextReactionMethod struct{}

func (nextReactionMethod) prepare(s *Simulator) error { return s.compilePerReaction() }

func (m nextReactionMethod) begin(w *worker, r *realization) error {
	if err := w.itAll.Eval(r.x, r.a); err != nil {
		return err
	}
	if _, err := sum(r.a); err != nil {
		return err
	}
	for j := range r.taus {
		r.taus[j] = m.draw(w, r.t, r.a[j])
	}
	return nil
}

func (m nextReactionMethod) advance(w *worker, r *realization, target float64) error {
	s := w.sim
	for {
		mu, tmin := argminTau(r.taus)
		if math.IsInf(tmin, 1) {
			r.frozen = true
			r.t = target
			return nil
		}
		if tmin > target {
			r.t = target
			return nil
		}
		s.applyStoich(r, mu)
		r.t = tmin

		for _, i := range s.dep.Affects(mu) {
			if err := w.itPer[i].Eval(r.x, w.buf[:]); err != nil {
				return err
			}
			r.a[i] = w.buf[0]
			r.taus[i] = m.draw(w, r.t, r.a[i])
		}
	}
}

// draw returns an absolute candidate firing time for propensity a at
// current time t, or +Inf if the reaction cannot fire.
func (nextReactionMethod) draw(w *worker, t, a float64) float64 {
	if a <= 0 {
		return math.Inf(1)
	}
	return t + distuv.Exponential{Rate: a, Src: w.src}.Rand()
}

func argminTau(taus []float64) (int, float64) {
	mu, tmin := 0, taus[0]
	for j := 1; j < len(taus); j++ {
		if taus[j] < tmin {
			mu, tmin = j, taus[j]
		}
	}
	return mu, tmin
}
