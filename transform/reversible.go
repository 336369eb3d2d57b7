package transform

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
)

// SplitReversible rewrites every reversible reaction r (rate law `rate`)
// into two irreversible reactions: a forward reaction with the original
// reactant/product roles and rate `rate_forward`, and a backward
// reaction with reactant/product roles swapped and rate `rate_backward`,
// where rate_forward is obtained by substituting zero for every product
// and rate_backward is the negation of rate with zero substituted for
// every reactant. The split is verified by checking rate_forward -
// rate_backward equals rate; a
// rate law that doesn't decompose this
// way fails with a named error rather than silently producing wrong
// dynamics.
//
// Running SplitReversible twice is a no-op the second time: every
// reaction in the result is already irreversible, so the second pass
// returns the same model's reaction set, and therefore the same
// stoichiometry matrix, unchanged.
func SplitReversible(m *model.Model) (*model.Model, error) {
	out := m.Clone()
	for _, sym := range m.Reactions() {
		r, _ := m.Reaction(sym)
		if !r.Reversible {
			continue
		}
		zeroProducts := make(map[expr.Symbol]expr.Expr, len(r.Products))
		for _, t := range r.Products {
			zeroProducts[t.Species] = expr.Zero
		}
		zeroReactants := make(map[expr.Symbol]expr.Expr, len(r.Reactants))
		for _, t := range r.Reactants {
			zeroReactants[t.Species] = expr.Zero
		}

		forward := expr.Subst(r.RateLaw, zeroProducts)
		backward := expr.Neg(expr.Subst(r.RateLaw, zeroReactants))

		recombined := expr.Add(forward, expr.Neg(backward))
		if !exprEqualNumerically(recombined, r.RateLaw) {
			return nil, kinerr.Wrap(kinerr.SemanticError,
				"reaction %q: rate law does not decompose as rate_forward - rate_backward", r.Name)
		}

		out.Remove(sym)
		fwd, err := out.AddReaction(r.Name+"_fwd", false)
		if err != nil {
			return nil, err
		}
		fwd.Reactants = r.Reactants
		fwd.Products = r.Products
		fwd.Modifiers = r.Modifiers
		fwd.RateLaw = forward
		fwd.LocalParams = r.LocalParams

		bwd, err := out.AddReaction(r.Name+"_bwd", false)
		if err != nil {
			return nil, err
		}
		bwd.Reactants = r.Products
		bwd.Products = r.Reactants
		bwd.Modifiers = r.Modifiers
		bwd.RateLaw = backward
	}
	return out, nil
}

// exprEqualNumerically checks recombined == original either by exact
// structural equality (fast path) or, for expressions where
// associativity/commutativity normalization alone isn't enough, by
// numerically sampling a handful of points over the shared free symbols.
// A full CAS would prove the identity symbolically; sampling is the
// pragmatic stand-in available without one.
func exprEqualNumerically(a, b expr.Expr) bool {
	if a.Equal(b) {
		return true
	}
	syms := expr.FreeSymbols(a)
	for s := range expr.FreeSymbols(b) {
		syms[s] = true
	}
	samples := []float64{0.3, 1.7, 5.1}
	for _, v := range samples {
		values := make(map[expr.Symbol]float64, len(syms))
		for s := range syms {
			values[s] = v
		}
		av, aerr := expr.Eval(a, values)
		bv, berr := expr.Eval(b, values)
		if aerr != nil || berr != nil {
			return false
		}
		if abs(av-bv) > 1e-9*(1+abs(av)) {
			return false
		}
	}
	return true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
