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

package kinutil

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/sbmlio"
	"github.com/spatialmodel/kinetics/scan"
	"github.com/spatialmodel/kinetics/ssa"
	"github.com/spatialmodel/kinetics/sse"
	"github.com/spatialmodel/kinetics/steady"
)

// readModel loads an exchange-format model file.
func readModel(path string) (*model.Model, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("kinetics: problem opening model file: %v", err)
	}
	defer f.Close()
	return sbmlio.Read(f)
}

// speciesColumns maps the input model's species order onto a prepared
// analysis: each output column is either an independent-species entry of
// the SSE state or a dependent species reconstructed from the
// conservation relation.
type speciesColumns struct {
	names []string
	ind   []int // >= 0: index into the RE block; -1: dependent
	dep   []int // valid where ind[i] == -1: conservation-law index
	p     *scan.Prepared
}

func newSpeciesColumns(m *model.Model, p *scan.Prepared) speciesColumns {
	indIdx := make(map[string]int, len(p.Names))
	for i, n := range p.Names {
		indIdx[n] = i
	}
	depIdx := make(map[string]int, len(p.DepNames))
	for d, n := range p.DepNames {
		depIdx[n] = d
	}
	sc := speciesColumns{p: p}
	for _, sym := range m.Species() {
		name := m.Name(sym)
		sc.names = append(sc.names, name)
		if i, ok := indIdx[name]; ok {
			sc.ind = append(sc.ind, i)
			sc.dep = append(sc.dep, -1)
		} else {
			sc.ind = append(sc.ind, -1)
			sc.dep = append(sc.dep, depIdx[name])
		}
	}
	return sc
}

// values returns the species means in input-model order for an SSE
// state vector.
func (sc speciesColumns) values(state []float64) []float64 {
	dep := sc.p.DependentValues(state)
	out := make([]float64, len(sc.names))
	for i := range sc.names {
		if sc.ind[i] >= 0 {
			out[i] = state[sc.p.Update.Sizes.OffRE+sc.ind[i]]
		} else {
			out[i] = dep[sc.dep[i]]
		}
	}
	return out
}

// variances returns the LNA variances in input-model order. A dependent
// species is an affine combination of the independent ones, so its
// variance is the L0-weighted quadratic form over the covariance block.
func (sc speciesColumns) variances(state []float64) []float64 {
	sizes := sc.p.Update.Sizes
	cov := func(a, b int) float64 { return state[sizes.OffCov+sse.ColexIndex(a, b)] }
	out := make([]float64, len(sc.names))
	for i := range sc.names {
		if k := sc.ind[i]; k >= 0 {
			out[i] = cov(k, k)
			continue
		}
		d := sc.dep[i]
		v := 0.0
		for a := 0; a < sizes.NInd; a++ {
			for b := 0; b < sizes.NInd; b++ {
				v += sc.p.Data.L0.At(d, a) * sc.p.Data.L0.At(d, b) * cov(a, b)
			}
		}
		out[i] = v
	}
	return out
}

// writeRow emits one whitespace-separated output row: time, species
// columns, optional variance columns, derived columns.
func writeRow(w io.Writer, t float64, species, variances []float64, derived []outputVar, names []string) error {
	if _, err := fmt.Fprintf(w, "%g", t); err != nil {
		return err
	}
	for _, v := range species {
		if _, err := fmt.Fprintf(w, " %g", v); err != nil {
			return err
		}
	}
	for _, v := range variances {
		if _, err := fmt.Fprintf(w, " %g", v); err != nil {
			return err
		}
	}
	if len(derived) > 0 {
		vals := make(map[string]interface{}, len(names))
		for i, n := range names {
			vals[n] = species[i]
		}
		for _, d := range derived {
			v, err := d.eval(vals)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, " %g", v); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// RunTimeCourse integrates the SSE hierarchy selected by --level and
// writes one row per output step.
func RunTimeCourse(cfg *Cfg, tc TimeCourse, w io.Writer) error {
	log, err := newLogger(cfg.GetString("log-file"))
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.GetString("level"))
	if err != nil {
		return err
	}
	derived, err := parseOutputVars(cfg.GetString("output-vars"))
	if err != nil {
		return err
	}

	m, err := readModel(tc.ModelFile)
	if err != nil {
		return err
	}
	start := time.Now()
	p, err := scan.Prepare(m, nil, level, bytecode.OptLevel(cfg.GetInt("opt")))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"species":   p.Update.Sizes.NInd,
		"dimension": p.Update.Sizes.Total,
		"level":     cfg.GetString("level"),
	}).Info("kinetics: compiled expansion system")

	sc := newSpeciesColumns(m, p)
	f := p.Func()
	state := make([]float64, p.Update.Sizes.Total)
	copy(state[p.Update.Sizes.OffRE:], p.X0)

	out := bufio.NewWriter(w)
	defer out.Flush()

	withVariance := level >= sse.LevelLNA
	emit := func(t float64) error {
		var vars []float64
		if withVariance {
			vars = sc.variances(state)
		}
		return writeRow(out, t, sc.values(state), vars, derived, sc.names)
	}
	if err := emit(tc.T0); err != nil {
		return err
	}

	integ := newRK4(p.Update.Sizes.Total)
	dt := (tc.TEnd - tc.T0) / float64(tc.Steps)
	h := cfg.GetFloat64("dt")
	substeps := int(math.Ceil(dt / h))
	for s := 1; s <= tc.Steps; s++ {
		t := tc.T0 + float64(s-1)*dt
		if err := integ.step(f, state, t, dt, substeps); err != nil {
			return err
		}
		if err := emit(tc.T0 + float64(s)*dt); err != nil {
			return err
		}
	}
	log.WithField("elapsed", time.Since(start)).Info("kinetics: run complete")
	return nil
}

// RunSSA drives a Monte-Carlo ensemble, emitting ensemble means and
// variances at each output time.
func RunSSA(cfg *Cfg, tc TimeCourse, w io.Writer) error {
	log, err := newLogger(cfg.GetString("log-file"))
	if err != nil {
		return err
	}
	derived, err := parseOutputVars(cfg.GetString("output-vars"))
	if err != nil {
		return err
	}
	m, err := readModel(tc.ModelFile)
	if err != nil {
		return err
	}

	ensemble := cfg.GetInt("ensemble")
	seed := uint64(cfg.GetInt("seed"))
	workers := workerCount(cfg.GetInt("workers"))
	opt := bytecode.OptLevel(cfg.GetInt("opt"))

	var sim *ssa.Simulator
	switch method := cfg.GetString("method"); method {
	case "direct":
		sim, err = ssa.NewDirect(m, ensemble, seed, workers, opt)
	case "optimized":
		sim, err = ssa.NewOptimized(m, ensemble, seed, workers, opt)
	case "nextreaction":
		sim, err = ssa.NewNextReaction(m, ensemble, seed, workers, opt)
	default:
		return fmt.Errorf("kinetics: unknown simulation method %q", method)
	}
	if err != nil {
		return err
	}
	sim.Log = log

	names := sim.SpeciesNames()
	out := bufio.NewWriter(w)
	defer out.Flush()

	emit := func(t float64) error {
		means := make([]float64, len(names))
		vars := make([]float64, len(names))
		for i := range names {
			means[i], vars[i] = sim.MeanVariance(i)
		}
		return writeRow(out, t, means, vars, derived, names)
	}
	if err := emit(tc.T0); err != nil {
		return err
	}
	dt := (tc.TEnd - tc.T0) / float64(tc.Steps)
	for s := 1; s <= tc.Steps; s++ {
		if err := sim.Run(dt); err != nil {
			return err
		}
		if err := emit(tc.T0 + float64(s)*dt); err != nil {
			return err
		}
	}
	return nil
}

// RunSteady solves for the rate-equation fixed point and emits a single
// row of steady species values (with LNA variances when the level
// includes them).
func RunSteady(cfg *Cfg, modelFile string, w io.Writer) error {
	log, err := newLogger(cfg.GetString("log-file"))
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.GetString("level"))
	if err != nil {
		return err
	}
	derived, err := parseOutputVars(cfg.GetString("output-vars"))
	if err != nil {
		return err
	}
	m, err := readModel(modelFile)
	if err != nil {
		return err
	}
	p, err := scan.Prepare(m, nil, level, bytecode.OptLevel(cfg.GetInt("opt")))
	if err != nil {
		return err
	}
	r, err := steady.Solve(p.Func(), p.Update.Sizes, level, p.X0, steady.Options{})
	if err != nil {
		return err
	}
	log.WithField("leading_eigenvalue", fmt.Sprintf("%v", r.Leading)).
		Info("kinetics: steady state found")

	sc := newSpeciesColumns(m, p)
	out := bufio.NewWriter(w)
	defer out.Flush()
	var vars []float64
	if level >= sse.LevelLNA {
		vars = sc.variances(r.State)
	}
	return writeRow(out, 0, sc.values(r.State), vars, derived, sc.names)
}

// RunScan sweeps the steady-state analysis over the parameter sets of
// --scan-file, emitting one row per set: the set's parameter values in
// sorted name order, then the steady species values (NaN columns where
// the set failed numerically).
func RunScan(cfg *Cfg, modelFile string, w io.Writer) error {
	log, err := newLogger(cfg.GetString("log-file"))
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.GetString("level"))
	if err != nil {
		return err
	}
	m, err := readModel(modelFile)
	if err != nil {
		return err
	}
	rawSets, err := readScanSets(cfg.GetString("scan-file"))
	if err != nil {
		return err
	}

	// Resolve the scanned parameter names through the model scope. All
	// sets must scan the same parameters.
	var paramNames []string
	for name := range rawSets[0] {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	syms := make([]expr.Symbol, len(paramNames))
	for i, name := range paramNames {
		sym, ok := m.Lookup(name)
		if !ok {
			return fmt.Errorf("kinetics: scan parameter %q is not defined in the model", name)
		}
		syms[i] = sym
	}
	sets := make([]scan.Set, len(rawSets))
	for si, raw := range rawSets {
		if len(raw) != len(paramNames) {
			return fmt.Errorf("kinetics: scan set %d does not assign the same parameters as set 0", si)
		}
		set := make(scan.Set, len(raw))
		for i, name := range paramNames {
			v, ok := raw[name]
			if !ok {
				return fmt.Errorf("kinetics: scan set %d is missing parameter %q", si, name)
			}
			set[syms[i]] = v
		}
		sets[si] = set
	}

	res, err := scan.Run(m, syms, sets, scan.Config{
		Level:   level,
		Opt:     bytecode.OptLevel(cfg.GetInt("opt")),
		Workers: workerCount(cfg.GetInt("workers")),
		Log:     log,
	})
	if err != nil {
		return err
	}

	out := bufio.NewWriter(w)
	defer out.Flush()
	for si := range sets {
		for i := range paramNames {
			sep := " "
			if i == 0 {
				sep = ""
			}
			if _, err := fmt.Fprintf(out, "%s%g", sep, sets[si][syms[i]]); err != nil {
				return err
			}
		}
		for j := 0; j < res.Sizes.NInd; j++ {
			if _, err := fmt.Fprintf(out, " %g", res.Values.At(si, res.Sizes.OffRE+j)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	return nil
}
