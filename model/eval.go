package model

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
)

// maxSubstIter bounds the fixed-point substitution used by
// EvaluateInitialValue; a model whose initial-value expressions form a
// genuine cycle is an InternalError-class invariant violation, not
// something a bigger bound would fix.
const maxSubstIter = 64

// initValueMap builds the substitution closure "every variable maps to
// its initial-value expression", used to transitively resolve an
// arbitrary expression down to a number.
func (m *Model) initValueMap() map[Symbol]expr.Expr {
	out := make(map[Symbol]expr.Expr, len(m.compartments)+len(m.species)+len(m.parameters))
	for sym, c := range m.compartments {
		out[sym] = c.InitValue
	}
	for sym, s := range m.species {
		out[sym] = s.InitValue
	}
	for sym, p := range m.parameters {
		out[sym] = p.Value
	}
	return out
}

// EvaluateInitialValue substitutes every variable in e by its
// initial-value expression, transitively, then reduces to a double. It
// fails if the transitive substitution leaves an unresolved free symbol
// or a non-numeric residue.
func (m *Model) EvaluateInitialValue(e expr.Expr) (float64, error) {
	resolved, ok := expr.SubstToFixedPoint(e, m.initValueMap(), maxSubstIter)
	if !ok {
		return 0, kinerr.Wrap(kinerr.SemanticError, "initial-value substitution did not converge within %d iterations", maxSubstIter)
	}
	v, err := expr.Eval(resolved, nil)
	if err != nil {
		return 0, kinerr.Wrap(kinerr.SemanticError, "initial value does not reduce to a number: %v", err)
	}
	return v, nil
}

// CheckResolvable verifies that every free symbol in e is resolvable in
// scope (the model's root scope, plus localScope if non-nil — a
// reaction's kinetic-law scope). It is the check backing the model-wide
// invariant that every kinetic law's free symbols are a subset of
// (reaction-local parameters ∪ model-scope definitions).
func (m *Model) CheckResolvable(e expr.Expr, localScope map[Symbol]bool) error {
	for sym := range expr.FreeSymbols(e) {
		if localScope != nil && localScope[sym] {
			continue
		}
		if _, ok := m.compartments[sym]; ok {
			continue
		}
		if _, ok := m.species[sym]; ok {
			continue
		}
		if _, ok := m.parameters[sym]; ok {
			continue
		}
		if sym == m.TimeSymbol {
			continue
		}
		return kinerr.Wrap(kinerr.SemanticError, "symbol %q is not resolvable in the enclosing scope chain", m.Name(sym))
	}
	return nil
}

// ReactionScope returns the set of symbols local to r's kinetic-law
// scope, for use with CheckResolvable.
func ReactionScope(r *Reaction) map[Symbol]bool {
	scope := make(map[Symbol]bool, len(r.LocalParams))
	for _, s := range r.LocalParams {
		scope[s] = true
	}
	return scope
}
