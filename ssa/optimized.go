package ssa

import "gonum.org/v1/gonum/stat/distuv"

// optimizedMethod is the dependency-graph variant: after reaction μ
// fires, only the propensities the dependency graph flags are
// recomputed, through one compiled single-output program per reaction;
// the full-vector program runs once at the start of each Run to refresh
// the a0 accumulator.
type optimizedMethod struct{}

func (optimizedMethod) prepare(s *Simulator) error { return s.compilePerReaction() }

func (optimizedMethod) begin(w *worker, r *realization) error {
	if err := w.itAll.Eval(r.x, r.a); err != nil {
		return err
	}
	a0, err := sum(r.a)
	if err != nil {
		return err
	}
	r.a0 = a0
	return nil
}

func (optimizedMethod) advance(w *worker, r *realization, target float64) error {
	s := w.sim
	for {
		if r.a0 <= 0 {
			r.frozen = true
			r.t = target
			return nil
		}
		tau := distuv.Exponential{Rate: r.a0, Src: w.src}.Rand()
		if r.t+tau > target {
			r.t = target
			return nil
		}
		mu := selectReaction(w, r.a, r.a0)
		s.applyStoich(r, mu)
		r.t += tau

		for _, i := range s.dep.Affects(mu) {
			old := r.a[i]
			if err := w.itPer[i].Eval(r.x, w.buf[:]); err != nil {
				return err
			}
			r.a[i] = w.buf[0]
			r.a0 += r.a[i] - old
		}
	}
}
