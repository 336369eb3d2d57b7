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

// Package scan implements the parameter-scan driver: steady-state
// analysis of one model over a list of parameter substitution maps,
// worker-parallel across parameter sets with thread-local copies of the
// symbolic machinery.
package scan

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/internal/workerpool"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/sse"
	"github.com/spatialmodel/kinetics/steady"
)

// Set assigns a value to every scan symbol for one scan point.
type Set map[expr.Symbol]float64

// Config configures a scan run.
type Config struct {
	Level   sse.Level
	Opt     bytecode.OptLevel
	Workers int
	Newton  steady.Options

	// Log, if non-nil, receives per-set progress entries.
	Log *logrus.Logger
}

// Results is the scan output: one row of the steady SSE state per
// parameter set. Rows whose analysis failed with a NumericError are
// filled with NaN and flagged in Failed; any other error aborts the
// whole scan.
type Results struct {
	Sizes  sse.Sizes
	Names  []string // independent-species names, RE-block column order
	Sets   []Set
	Values *mat.Dense // len(Sets) x Sizes.Total
	Failed []bool
}

// Run analyzes m's steady state for every parameter set in sets,
// holding scanSyms symbolic through constant folding and assigning them
// per set. Work is distributed across cfg.Workers; each worker prepares
// its own thread-local copy of the model, the derived SSE system and
// the compiled programs once, on first claim, and reuses it for all its
// sets — the result for a given set is a function of the set alone, so
// the result matrix is identical for every worker count.
func Run(m *model.Model, scanSyms []expr.Symbol, sets []Set, cfg Config) (*Results, error) {
	if len(sets) == 0 {
		return nil, kinerr.Wrap(kinerr.InternalError, "scan: no parameter sets given")
	}

	// One Prepare up front validates the model and sizes the result
	// matrix before any worker starts.
	probe, err := Prepare(m, scanSyms, cfg.Level, cfg.Opt)
	if err != nil {
		return nil, err
	}
	sizes := probe.Update.Sizes

	res := &Results{
		Sizes:  sizes,
		Names:  probe.Names,
		Sets:   sets,
		Values: mat.NewDense(len(sets), sizes.Total, nil),
		Failed: make([]bool, len(sets)),
	}

	workers := workerpool.Workers(cfg.Workers)
	locals := make([]*Prepared, workers)
	locals[0] = probe
	errs := workerpool.NewErrors(workers)
	workerpool.Distribute(len(sets), workers, func(wi, si int) {
		p := locals[wi]
		if p == nil {
			var err error
			if p, err = Prepare(m, scanSyms, cfg.Level, cfg.Opt); err != nil {
				errs.Set(wi, err)
				return
			}
			locals[wi] = p
		}
		if err := solveSet(p, sets[si], si, res, cfg); err != nil {
			errs.Set(wi, err)
		}
	})
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// solveSet analyzes one parameter set into row si of res, converting
// NumericError failures into a NaN row per the scan's
// catch-and-continue policy; all other error kinds propagate.
func solveSet(p *Prepared, set Set, si int, res *Results, cfg Config) error {
	if err := p.SetParams(set); err != nil {
		return err
	}
	r, err := steady.Solve(p.Func(), p.Update.Sizes, cfg.Level, p.X0, cfg.Newton)
	if err != nil {
		if kinerr.Is(err, kinerr.NumericError) {
			for j := 0; j < res.Sizes.Total; j++ {
				res.Values.Set(si, j, math.NaN())
			}
			res.Failed[si] = true
			if cfg.Log != nil {
				cfg.Log.WithFields(logrus.Fields{"set": si, "err": err}).Warn("scan: parameter set failed")
			}
			return nil
		}
		return err
	}
	res.Values.SetRow(si, r.State)
	if cfg.Log != nil {
		cfg.Log.WithFields(logrus.Fields{"set": si}).Debug("scan: parameter set solved")
	}
	return nil
}
