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

// Package transform implements the composable rewriter pipeline:
// assertions that reject models outside the supported
// fragment, and rewriters that produce a derived, reduced model —
// reversible-reaction splitting, unit normalization, constant folding,
// and stoichiometric conservation analysis.
//
// Every stage has the shape func(*model.Model) (*model.Model, error),
// so a whole analysis is a list of composable passes over the network.
package transform

import "github.com/spatialmodel/kinetics/model"

// Stage is one pass of the transform pipeline. An assertion stage
// returns its input unchanged on success; a rewriting stage returns a
// derived model (see model.Model.Clone).
type Stage func(*model.Model) (*model.Model, error)

// Pipeline composes stages, short-circuiting on the first error.
type Pipeline []Stage

// Run applies every stage in order to m, threading the (possibly
// derived) model through each.
func (p Pipeline) Run(m *model.Model) (*model.Model, error) {
	cur := m
	for _, stage := range p {
		next, err := stage(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
