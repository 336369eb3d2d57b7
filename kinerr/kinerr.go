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

// Package kinerr defines the typed error kinds shared across the kinetics
// packages.
package kinerr

import (
	"errors"
	"fmt"
)

// The five error kinds. Every error returned from package code wraps
// exactly one of these via %w, so callers can distinguish kinds with
// errors.Is regardless of how much context has been added to the message.
var (
	// UnsupportedFeature marks a network that uses a construct outside
	// the fragment the transform pipeline supports. Fatal.
	UnsupportedFeature = errors.New("unsupported feature")

	// SemanticError marks a network that is internally inconsistent:
	// non-constant stoichiometry, an unresolved symbol, a zero
	// compartment volume, and similar.
	SemanticError = errors.New("semantic error")

	// CompileError marks a failure to lower an expression to bytecode:
	// an unresolved input symbol or an unsupported function.
	CompileError = errors.New("compile error")

	// NumericError marks a runtime numeric failure: a non-finite
	// propensity, a negative steady state, an unstable Jacobian, a
	// line-search failure, an iteration cap. Non-fatal for parameter
	// scans; fatal everywhere else.
	NumericError = errors.New("numeric error")

	// InternalError marks an invariant violation. Always fatal.
	InternalError = errors.New("internal error")
)

// Wrap annotates kind with a message naming the offending definition,
// operation, and (where applicable) the numeric symptom, per the
// error-handling design's user-visible-message requirement.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Is reports whether err is (or wraps) kind.
func Is(err, kind error) bool { return errors.Is(err, kind) }
