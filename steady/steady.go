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

// Package steady finds the fixed point of the rate-equation system by
// damped Newton iteration with a backtracking line search and an
// integration-step fallback, then fills in the LNA, EMRE and IOS blocks
// of the SSE state by successive linear solves at that fixed point.
package steady

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/ode"
	"github.com/spatialmodel/kinetics/sse"
)

// The typed failure modes of the Newton solver. Each wraps NumericError,
// so the parameter-scan driver's errors.Is(err, kinerr.NumericError)
// catch-and-continue policy covers all four.
var (
	ErrIterationCap        = fmt.Errorf("%w: steady state not found within the iteration cap", kinerr.NumericError)
	ErrLineSearch          = fmt.Errorf("%w: line search failed to reduce the residual", kinerr.NumericError)
	ErrNegativeSteadyState = fmt.Errorf("%w: steady state has a negative entry", kinerr.NumericError)
	ErrUnstableJacobian    = fmt.Errorf("%w: Jacobian is unstable at the steady state", kinerr.NumericError)
)

// Options configures the Newton solver. Zero values select the defaults
// noted on each field.
type Options struct {
	MaxIter       int     // Newton iteration cap; default 100
	Tol           float64 // residual infinity-norm tolerance; default 1e-9
	MaxLineSearch int     // step-halving cap per iteration; default 40
	MaxFallbacks  int     // integration-step escapes before giving up; default 16
	Dt0           float64 // initial fallback integration step; default 1e-2, doubled per use
}

func (o Options) withDefaults() Options {
	if o.MaxIter == 0 {
		o.MaxIter = 100
	}
	if o.Tol == 0 {
		o.Tol = 1e-9
	}
	if o.MaxLineSearch == 0 {
		o.MaxLineSearch = 40
	}
	if o.MaxFallbacks == 0 {
		o.MaxFallbacks = 16
	}
	if o.Dt0 == 0 {
		o.Dt0 = 1e-2
	}
	return o
}

// Result is the steady-state analysis output: the full SSE state vector
// with every block at its steady value, the rate-equation Jacobian at
// the root, and its leading (largest-real-part) eigenvalue.
type Result struct {
	Sizes    sse.Sizes
	State    []float64  // length Sizes.Total
	Jacobian *mat.Dense // NInd x NInd rate-equation Jacobian
	Leading  complex128
}

// Solve finds the rate-equation root from initial guess x0 (length
// sizes.NInd), verifies its stability, and then solves the linear
// systems for the covariance, EMRE and (at LevelIOS) third-moment, IOS
// covariance and IOS-EMRE blocks in turn. f must be the compiled SSE
// update vector and Jacobian for sizes.
func Solve(f *ode.SSEFunc, sizes sse.Sizes, level sse.Level, x0 []float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(x0) != sizes.NInd {
		return nil, kinerr.Wrap(kinerr.InternalError, "steady: x0 has length %d, want %d", len(x0), sizes.NInd)
	}

	st := make([]float64, sizes.Total)
	copy(st[sizes.OffRE:], x0)

	jacFull := mat.NewDense(sizes.Total, sizes.Total, nil)
	if err := newtonRE(f, sizes, st, jacFull, opts); err != nil {
		return nil, err
	}

	for i := 0; i < sizes.NInd; i++ {
		if st[sizes.OffRE+i] < -opts.Tol {
			return nil, fmt.Errorf("%w: species %d = %v", ErrNegativeSteadyState, i, st[sizes.OffRE+i])
		}
	}

	jr := extract(jacFull, sizes.OffRE, sizes.NInd)
	leading, err := leadingEigenvalue(jr)
	if err != nil {
		return nil, err
	}
	if real(leading) > opts.Tol {
		return nil, fmt.Errorf("%w: leading eigenvalue %v", ErrUnstableJacobian, leading)
	}

	// Successive linear solves, lowest block first: each block's update
	// is linear in its own unknowns with everything higher-order still
	// zero, so its steady value is -A⁻¹·rhs with A the corresponding
	// diagonal block of the compiled SSE Jacobian. For the covariance
	// block, A is exactly the packed form of the Lyapunov operator
	// -(I⊗J + J⊗I), so this solve is the vectorized Lyapunov equation
	// J·C + C·Jᵀ + B = 0.
	type block struct{ off, n int }
	var order []block
	if level >= sse.LevelLNA {
		order = append(order, block{sizes.OffCov, sizes.NCov})
	}
	if level >= sse.LevelEMRE {
		order = append(order, block{sizes.OffEmre, sizes.NEmre})
	}
	if level >= sse.LevelIOS {
		order = append(order,
			block{sizes.OffThird, sizes.NThird},
			block{sizes.OffIosCov, sizes.NIosCov},
			block{sizes.OffIosEmre, sizes.NIosEmre})
	}
	dstate := make([]float64, sizes.Total)
	for _, b := range order {
		if err := solveBlock(f, st, dstate, jacFull, b.off, b.n); err != nil {
			return nil, err
		}
	}

	return &Result{Sizes: sizes, State: st, Jacobian: jr, Leading: leading}, nil
}

// FindRE runs only the Newton stage, returning the rate-equation root.
func FindRE(f *ode.SSEFunc, sizes sse.Sizes, x0 []float64, opts Options) ([]float64, error) {
	opts = opts.withDefaults()
	st := make([]float64, sizes.Total)
	copy(st[sizes.OffRE:], x0)
	jacFull := mat.NewDense(sizes.Total, sizes.Total, nil)
	if err := newtonRE(f, sizes, st, jacFull, opts); err != nil {
		return nil, err
	}
	root := make([]float64, sizes.NInd)
	copy(root, st[sizes.OffRE:sizes.OffRE+sizes.NInd])
	return root, nil
}

// newtonRE drives st's rate-equation block to the root of RE(x) = 0.
// On return jacFull holds the SSE Jacobian evaluated at the root.
func newtonRE(f *ode.SSEFunc, sizes sse.Sizes, st []float64, jacFull *mat.Dense, opts Options) error {
	n := sizes.NInd
	dstate := make([]float64, sizes.Total)
	res := make([]float64, n)
	trial := make([]float64, n)

	evalRes := func(into []float64) (float64, error) {
		if err := f.Evaluate(st, 0, dstate); err != nil {
			return 0, err
		}
		copy(into, dstate[sizes.OffRE:sizes.OffRE+n])
		return infNorm(into), nil
	}

	norm, err := evalRes(res)
	if err != nil {
		return err
	}

	fallbacks := 0
	dt := opts.Dt0
	for iter := 0; iter < opts.MaxIter; iter++ {
		if norm <= opts.Tol {
			return f.EvaluateJacobian(st, 0, jacFull)
		}

		if err := f.EvaluateJacobian(st, 0, jacFull); err != nil {
			return err
		}
		a := extract(jacFull, sizes.OffRE, n)
		step, ok := solveNewtonStep(a, res)
		lineSearchOK := false
		if ok {
			// Backtracking line search on the residual norm.
			alpha := 1.0
			base := make([]float64, n)
			copy(base, st[sizes.OffRE:sizes.OffRE+n])
			for ls := 0; ls < opts.MaxLineSearch; ls++ {
				for i := 0; i < n; i++ {
					st[sizes.OffRE+i] = base[i] + alpha*step[i]
				}
				trialNorm, err := evalRes(trial)
				if err == nil && trialNorm < norm {
					norm = trialNorm
					copy(res, trial)
					lineSearchOK = true
					break
				}
				alpha /= 2
			}
			if !lineSearchOK {
				copy(st[sizes.OffRE:sizes.OffRE+n], base)
			}
		}

		if !lineSearchOK {
			// Escape by a single explicit integration step of
			// geometrically growing length, then retry Newton.
			if fallbacks >= opts.MaxFallbacks {
				return fmt.Errorf("%w: after %d integration-step escapes", ErrLineSearch, fallbacks)
			}
			fallbacks++
			for i := 0; i < n; i++ {
				st[sizes.OffRE+i] += dt * res[i]
			}
			dt *= 2
			if norm, err = evalRes(res); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: residual %v after %d iterations", ErrIterationCap, norm, opts.MaxIter)
}

// solveBlock zeroes the unknown block, evaluates the update vector and
// Jacobian there, and solves A·y = -rhs for the block's steady values.
func solveBlock(f *ode.SSEFunc, st, dstate []float64, jacFull *mat.Dense, off, n int) error {
	for i := 0; i < n; i++ {
		st[off+i] = 0
	}
	if err := f.Evaluate(st, 0, dstate); err != nil {
		return err
	}
	if err := f.EvaluateJacobian(st, 0, jacFull); err != nil {
		return err
	}
	a := extract(jacFull, off, n)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, -dstate[off+i])
	}
	var y mat.VecDense
	if err := y.SolveVec(a, rhs); err != nil {
		return kinerr.Wrap(kinerr.NumericError, "steady: singular coefficient matrix for block at offset %d: %v", off, err)
	}
	for i := 0; i < n; i++ {
		st[off+i] = y.AtVec(i)
	}
	return nil
}

func solveNewtonStep(a *mat.Dense, res []float64) ([]float64, bool) {
	n := len(res)
	rhs := mat.NewVecDense(n, nil)
	for i := range res {
		rhs.SetVec(i, -res[i])
	}
	var d mat.VecDense
	if err := d.SolveVec(a, rhs); err != nil {
		return nil, false
	}
	step := make([]float64, n)
	for i := range step {
		step[i] = d.AtVec(i)
		if math.IsNaN(step[i]) || math.IsInf(step[i], 0) {
			return nil, false
		}
	}
	return step, true
}

// leadingEigenvalue returns the eigenvalue of a with the largest real
// part.
func leadingEigenvalue(a *mat.Dense) (complex128, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(a, mat.EigenNone); !ok {
		return 0, kinerr.Wrap(kinerr.NumericError, "steady: eigenvalue factorization failed")
	}
	values := eig.Values(nil)
	leading := values[0]
	for _, v := range values[1:] {
		if real(v) > real(leading) {
			leading = v
		}
	}
	return leading, nil
}

func extract(m *mat.Dense, off, n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, m.At(off+i, off+j))
		}
	}
	return out
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
