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

// Package ode implements the SSE interpreter adapter: it
// wraps one compiled update-vector evaluator and one compiled
// Jacobian evaluator behind the two-method contract a stiff-ODE
// integrator expects, and otherwise contains no logic of its own — the
// integrator itself is an external collaborator named only by this
// contract.
package ode

import (
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/kinerr"
)

// SSEFunc presents a compiled SSE update vector (and, lazily, its
// compiled Jacobian) as the right-hand side of an ODE: dstate/dt =
// Evaluate(state, t). Neither method allocates: callers own the output
// buffers, matching the interpreter's "no per-call allocation" contract.
type SSEFunc struct {
	vector bytecode.Evaluator
	jac    bytecode.MatEvaluator

	n int // state dimension, for callers sizing their buffers
}

// New wraps vector (required) and jac (optional — nil if the caller
// never asks for a Jacobian) behind the Evaluate/EvaluateJacobian
// contract. n is the SSE state dimension (sse.Sizes.Total).
func New(vector bytecode.Evaluator, jac bytecode.MatEvaluator, n int) *SSEFunc {
	return &SSEFunc{vector: vector, jac: jac, n: n}
}

// Dim returns the SSE state dimension.
func (f *SSEFunc) Dim() int { return f.n }

// Evaluate computes dstate/dt at (state, t) into dstate. The model this
// package's callers build has no explicit time dependence (transform's
// AssertNoTimeDependence), so t is accepted only to match the
// integrator's expected signature and is otherwise unused.
func (f *SSEFunc) Evaluate(state []float64, t float64, dstate []float64) error {
	_ = t
	if err := f.vector.Eval(state, dstate); err != nil {
		return err
	}
	return nil
}

// EvaluateJacobian computes d(dstate/dt)/d(state) at (state, t) into jac.
// It returns an InternalError if no Jacobian evaluator was supplied to
// New — callers that only integrate with a non-stiff, Jacobian-free
// method need not ever call it.
func (f *SSEFunc) EvaluateJacobian(state []float64, t float64, jac *mat.Dense) error {
	_ = t
	if f.jac == nil {
		return kinerr.Wrap(kinerr.InternalError, "SSEFunc.EvaluateJacobian called but no Jacobian evaluator was compiled")
	}
	return f.jac.EvalMat(state, jac)
}
