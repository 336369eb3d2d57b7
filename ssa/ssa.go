/*
Copyright © 2024 the kinetics authors.
This file is part of kinetics.

kinetics is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

kinetics is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with kinetics.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package ssa implements the stochastic simulation core: a
// parallel Monte-Carlo ensemble simulator for the jump process defined
// by a reaction network, in three algorithmic variants (direct,
// dependency-graph-optimized, next-reaction) sharing one stepper
// contract.
//
// Realizations are embarrassingly parallel; the ensemble loop is the
// same striding worker pool the parameter-scan driver uses
// (internal/workerpool). Each worker owns a private, deterministically
// seeded RNG, so ensemble statistics depend on the worker count, but
// repeated runs with the same seed and worker count are identical.
package ssa

import (
	"math"

	"github.com/sirupsen/logrus"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/internal/workerpool"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/transform"
)

// method is the per-variant stepper contract. prepare compiles whatever
// programs the variant needs beyond the shared full-propensity program;
// begin refreshes a realization's cached propensity state at the start
// of each Run; advance drives one realization from its current time to
// target.
type method interface {
	prepare(s *Simulator) error
	begin(w *worker, r *realization) error
	advance(w *worker, r *realization, target float64) error
}

// realization is one ensemble member: its simulated time, its particle
// counts (a row of the shared state matrix, owned by exactly one worker
// during a Run), and the per-variant cached propensity state.
type realization struct {
	t      float64
	x      []float64 // particle counts; aliases one row of Simulator.state
	a      []float64 // propensities; refilled every step by direct, cached between steps by optimized and next-reaction
	a0     float64
	taus   []float64 // absolute candidate firing times (next-reaction)
	frozen bool      // a0 reached zero during the current Run
}

// worker is the per-thread mutable state: the RNG stream and the
// interpreter instances evaluating the shared compiled programs. Workers
// persist across Run calls so each realization's trajectory continues
// from where the previous Run left it.
type worker struct {
	id  int
	sim *Simulator
	src xrand.Source
	rng *xrand.Rand

	itAll *bytecode.Interpreter   // full propensity vector
	itPer []*bytecode.Interpreter // one per reaction (optimized, next-reaction)
	buf   [1]float64
}

// Simulator drives an ensemble of realizations of the jump process. The
// compiled programs, the dependency graph and the stoichiometry are
// built once in the constructor and read-only during Run; the ensemble
// state matrix is partitioned so each row is touched by exactly one
// worker at a time.
type Simulator struct {
	// Log, if non-nil, receives per-Run progress entries.
	Log *logrus.Logger

	species []expr.Symbol
	names   []string
	stoich  [][]float64 // nSpecies x nReactions, net change per firing
	changed [][]int     // reaction -> species indices with nonzero net change

	props   []expr.Expr
	progAll *bytecode.Program
	progPer []*bytecode.Program
	dep     *DepGraph

	ensemble int
	seed     uint64
	nworkers int
	opt      bytecode.OptLevel

	meth    method
	state   *mat.Dense
	reals   []realization
	workers []*worker
}

// NewDirect builds a Gillespie direct-method simulator.
func NewDirect(m *model.Model, ensemble int, seed uint64, workers int, opt bytecode.OptLevel) (*Simulator, error) {
	return newSimulator(m, &directMethod{}, ensemble, seed, workers, opt)
}

// NewOptimized builds a dependency-graph simulator: after reaction μ
// fires, only the propensities whose inputs μ changed are recomputed.
func NewOptimized(m *model.Model, ensemble int, seed uint64, workers int, opt bytecode.OptLevel) (*Simulator, error) {
	return newSimulator(m, &optimizedMethod{}, ensemble, seed, workers, opt)
}

// NewNextReaction builds a next-reaction simulator maintaining a vector
// of absolute candidate firing times per realization, redrawing only the
// times the dependency graph flags after each firing.
func NewNextReaction(m *model.Model, ensemble int, seed uint64, workers int, opt bytecode.OptLevel) (*Simulator, error) {
	return newSimulator(m, &nextReactionMethod{}, ensemble, seed, workers, opt)
}

func newSimulator(m *model.Model, meth method, ensemble int, seed uint64, workers int, opt bytecode.OptLevel) (*Simulator, error) {
	if ensemble < 1 {
		return nil, kinerr.Wrap(kinerr.InternalError, "ssa: ensemble size must be positive, got %d", ensemble)
	}

	// Reduce the model to the evaluable fragment the jump process is
	// defined on: irreversible reactions, constants folded, species in
	// extensive units (particle counts).
	pipe := transform.Pipeline{transform.SplitReversible, transform.FoldConstants(nil)}
	if !m.SpeciesHasSubstanceUnits {
		pipe = append(pipe, transform.Normalize(transform.Extensive))
	}
	pipe = append(pipe, transform.AssertReasonableModel)
	red, err := pipe.Run(m)
	if err != nil {
		return nil, err
	}

	S, species, err := transform.StoichiometryMatrix(red)
	if err != nil {
		return nil, err
	}
	nSpecies := len(species)
	reactions := red.Reactions()
	nReactions := len(reactions)
	if nReactions == 0 {
		return nil, kinerr.Wrap(kinerr.SemanticError, "ssa: model has no reactions")
	}

	s := &Simulator{
		species:  species,
		names:    make([]string, nSpecies),
		stoich:   make([][]float64, nSpecies),
		changed:  make([][]int, nReactions),
		props:    make([]expr.Expr, nReactions),
		ensemble: ensemble,
		seed:     seed,
		nworkers: workerpool.Workers(workers),
		opt:      opt,
		meth:     meth,
	}
	for i, sym := range species {
		s.names[i] = red.Name(sym)
		s.stoich[i] = mat.Row(nil, i, S)
	}
	for j := 0; j < nReactions; j++ {
		for i := 0; i < nSpecies; i++ {
			if s.stoich[i][j] != 0 {
				s.changed[j] = append(s.changed[j], i)
			}
		}
	}

	// Compartment sizes are constant (AssertConstantCompartments); fold
	// their numeric values into the rate laws so the compiled programs
	// take only the species counts as input.
	compSubst := make(map[expr.Symbol]expr.Expr)
	for _, csym := range red.Compartments() {
		c, _ := red.Compartment(csym)
		v, err := red.EvaluateInitialValue(c.InitValue)
		if err != nil {
			return nil, kinerr.Wrap(kinerr.SemanticError, "ssa: compartment %q: %v", red.Name(csym), err)
		}
		if v == 0 {
			return nil, kinerr.Wrap(kinerr.SemanticError, "ssa: compartment %q has zero volume", red.Name(csym))
		}
		compSubst[csym] = expr.NewFloat(v)
	}
	for j, rsym := range reactions {
		r, _ := red.Reaction(rsym)
		s.props[j] = expr.Subst(r.RateLaw, compSubst)
	}

	index := make(map[expr.Symbol]int, nSpecies)
	for i, sym := range species {
		index[sym] = i
	}
	s.progAll, err = bytecode.NewCompiler(index, opt).Compile(s.props)
	if err != nil {
		return nil, err
	}
	s.dep = NewDepGraph(s.props, s.stoich, index)
	if err := meth.prepare(s); err != nil {
		return nil, err
	}

	// Initial particle counts, rounded to the nearest integer. A species
	// whose initial count is not a positive finite number after rounding
	// is rejected.
	x0 := make([]float64, nSpecies)
	for i, sym := range species {
		sp, _ := red.SpeciesDef(sym)
		v, err := red.EvaluateInitialValue(sp.InitValue)
		if err != nil {
			return nil, kinerr.Wrap(kinerr.SemanticError, "ssa: species %q: %v", sp.Name, err)
		}
		r := math.Round(v)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, kinerr.Wrap(kinerr.NumericError, "ssa: species %q initial particle count %v is not an integer after rounding", sp.Name, v)
		}
		if r <= 0 {
			return nil, kinerr.Wrap(kinerr.NumericError, "ssa: species %q initial particle count %v rounds to %v <= 0", sp.Name, v, r)
		}
		x0[i] = r
	}

	s.state = mat.NewDense(ensemble, nSpecies, nil)
	s.reals = make([]realization, ensemble)
	for e := 0; e < ensemble; e++ {
		s.state.SetRow(e, x0)
		s.reals[e] = realization{
			x: s.state.RawRowView(e),
			a: make([]float64, nReactions),
		}
		if _, ok := meth.(*nextReactionMethod); ok {
			s.reals[e].taus = make([]float64, nReactions)
		}
	}

	s.workers = make([]*worker, s.nworkers)
	for p := 0; p < s.nworkers; p++ {
		src := xrand.NewSource(seed + uint64(p)*0x9e3779b97f4a7c15)
		w := &worker{
			id:    p,
			sim:   s,
			src:   src,
			rng:   xrand.New(src),
			itAll: s.progAll.NewInterpreter(),
		}
		if s.progPer != nil {
			w.itPer = make([]*bytecode.Interpreter, nReactions)
			for j := range s.progPer {
				w.itPer[j] = s.progPer[j].NewInterpreter()
			}
		}
		s.workers[p] = w
	}
	return s, nil
}

// compilePerReaction builds one single-output program per propensity,
// shared by the optimized and next-reaction variants for selective
// recomputation after a firing.
func (s *Simulator) compilePerReaction() error {
	index := make(map[expr.Symbol]int, len(s.species))
	for i, sym := range s.species {
		index[sym] = i
	}
	s.progPer = make([]*bytecode.Program, len(s.props))
	for j, p := range s.props {
		prog, err := bytecode.NewCompiler(index, s.opt).Compile([]expr.Expr{p})
		if err != nil {
			return err
		}
		s.progPer[j] = prog
	}
	return nil
}

// Run advances every realization from its current simulated time by
// exactly dt. It returns only after all realizations have reached their
// target time; a non-finite propensity from any evaluator aborts the
// whole run with a NumericError. Realizations whose total propensity
// reaches zero are frozen until the end of the run (query FrozenCount).
func (s *Simulator) Run(dt float64) error {
	if dt <= 0 {
		return kinerr.Wrap(kinerr.InternalError, "ssa: Run interval must be positive, got %v", dt)
	}
	errs := workerpool.NewErrors(s.nworkers)
	workerpool.Distribute(s.ensemble, s.nworkers, func(wi, ei int) {
		w := s.workers[wi]
		r := &s.reals[ei]
		r.frozen = false
		if err := s.meth.begin(w, r); err != nil {
			errs.Set(wi, err)
			return
		}
		if err := s.meth.advance(w, r, r.t+dt); err != nil {
			errs.Set(wi, err)
		}
	})
	if err := errs.Err(); err != nil {
		return err
	}
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"ensemble": s.ensemble,
			"frozen":   s.FrozenCount(),
			"time":     s.reals[0].t,
		}).Info("ssa: run complete")
	}
	return nil
}

// State returns the ensemble particle-count matrix (ensemble x species).
// The returned matrix is the simulator's own storage: read-only between
// Run calls, never written by the caller.
func (s *Simulator) State() *mat.Dense { return s.state }

// SpeciesNames returns the species column names of State, in the
// model's definition order.
func (s *Simulator) SpeciesNames() []string { return s.names }

// Time returns the current simulated time of realization e.
func (s *Simulator) Time(e int) float64 { return s.reals[e].t }

// FrozenCount reports how many realizations had zero total propensity at
// the end of the last Run. Freezing is not an error: an absorbing state
// is a legitimate fate for a jump process.
func (s *Simulator) FrozenCount() int {
	n := 0
	for i := range s.reals {
		if s.reals[i].frozen {
			n++
		}
	}
	return n
}

// MeanVariance returns the ensemble mean and (unbiased) variance of
// species column i of the state matrix.
func (s *Simulator) MeanVariance(i int) (mean, variance float64) {
	col := mat.Col(nil, i, s.state)
	return stat.Mean(col, nil), stat.Variance(col, nil)
}

// Covariance returns the ensemble covariance of species columns i and j.
func (s *Simulator) Covariance(i, j int) float64 {
	ci := mat.Col(nil, i, s.state)
	cj := mat.Col(nil, j, s.state)
	return stat.Covariance(ci, cj, nil)
}

// applyStoich applies reaction j's net stoichiometric update to r's
// particle counts.
func (s *Simulator) applyStoich(r *realization, j int) {
	for _, i := range s.changed[j] {
		r.x[i] += s.stoich[i][j]
	}
}

// sum returns the total propensity, failing on non-finite entries so a
// diverging rate law is reported where it happens rather than as a hung
// exponential draw.
func sum(a []float64) (float64, error) {
	t := 0.0
	for j, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, kinerr.Wrap(kinerr.NumericError, "ssa: propensity %d is not finite: %v", j, v)
		}
		t += v
	}
	return t, nil
}
