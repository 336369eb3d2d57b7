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

// Package sse implements the System-Size Expansion derivation engine:
// from a conservation-reduced, extensive-unit reaction
// network it symbolically constructs the coefficient vectors and
// matrices governing the Linear Noise Approximation (LNA), Effective
// Mesoscopic Rate Equations (EMRE) and Inverse-Omega-Squared (IOS)
// corrections, producing the flat update vector and its Jacobian that
// package ode hands to a stiff integrator.
//
// The update-vector formulas themselves are the contract this package
// realizes, taken as given rather than re-derived here; symbolic
// generation happens once per model, and the
// result is compiled by package bytecode for hot-loop evaluation.
package sse

import "github.com/spatialmodel/kinetics/expr"

// Level selects how much of the SSE state-vector hierarchy Derive
// builds — a hierarchy of ODE systems of growing dimension. A caller
// only interested in the deterministic limit should
// not pay for (or have to supply a Jacobian for) the IOS blocks.
type Level int

const (
	// LevelRE builds only the rate-equation block.
	LevelRE Level = iota
	// LevelLNA additionally builds the covariance block.
	LevelLNA
	// LevelEMRE additionally builds the EMRE mean-correction block.
	LevelEMRE
	// LevelIOS builds the full state vector: RE, LNA covariance, EMRE,
	// third moment, IOS covariance correction, IOS-EMRE correction.
	LevelIOS
)

// Sizes holds the block lengths and offsets of the flat SSE state
// vector: concatenated RE / LNA-covariance / EMRE /
// third-moment / IOS-covariance / IOS-EMRE blocks.
type Sizes struct {
	NInd int

	NRE      int
	NCov     int
	NEmre    int
	NThird   int
	NIosCov  int
	NIosEmre int

	OffRE      int
	OffCov     int
	OffEmre    int
	OffThird   int
	OffIosCov  int
	OffIosEmre int

	Total int
}

// NewSizes computes the block layout for a model with nInd independent
// species, truncated at level.
func NewSizes(nInd int, level Level) Sizes {
	s := Sizes{NInd: nInd, NRE: nInd}
	s.OffRE = 0
	off := s.NRE
	if level >= LevelLNA {
		s.NCov = nInd * (nInd + 1) / 2
		s.OffCov = off
		off += s.NCov
	}
	if level >= LevelEMRE {
		s.NEmre = nInd
		s.OffEmre = off
		off += s.NEmre
	}
	if level >= LevelIOS {
		s.NThird = nInd * (nInd + 1) * (nInd + 2) / 6
		s.OffThird = off
		off += s.NThird

		s.NIosCov = nInd * (nInd + 1) / 2
		s.OffIosCov = off
		off += s.NIosCov

		s.NIosEmre = nInd
		s.OffIosEmre = off
		off += s.NIosEmre
	}
	s.Total = off
	return s
}

// ColexIndex maps a symmetric-matrix entry (i,j) with i>=j to its
// position within a packed lower-triangular block, in colexicographic
// order.
func ColexIndex(i, j int) int {
	if j > i {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// ColexIndex3 maps a fully-symmetric third-order-tensor entry (i,j,k)
// with i>=j>=k to its position within a packed block, in
// colexicographic order.
func ColexIndex3(i, j, k int) int {
	i, j, k = sort3(i, j, k)
	return i*(i+1)*(i+2)/6 + j*(j+1)/2 + k
}

func sort3(a, b, c int) (int, int, int) {
	if a < b {
		a, b = b, a
	}
	if b < c {
		b, c = c, b
	}
	if a < b {
		a, b = b, a
	}
	return a, b, c
}

// cyc3 sums f over the three cyclic permutations of (i,j,k), the "+ cyc"
// shorthand the third-moment and IOS formulas use throughout.
func cyc3(f func(i, j, k int) expr.Expr, i, j, k int) expr.Expr {
	return expr.Add(f(i, j, k), f(j, k, i), f(k, i, j))
}

// cyc2 sums f over the two transpositions of (i,j), used by the IOS
// covariance update's "+ cyc over i,j" symmetrization.
func cyc2(f func(i, j int) expr.Expr, i, j int) expr.Expr {
	return expr.Add(f(i, j), f(j, i))
}
