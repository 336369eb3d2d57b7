package transform

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
)

// FoldConstants builds a substitution map from every constant parameter's
// value and every assignment-rule right-hand side, then substitutes it to
// a fixed point into every reaction's rate law, replacing parameter and
// assignment-ruled symbols with closed-form expressions in the remaining
// free symbols. Symbols named in exclude are held out of the map so a
// parameter scan (package scan) can vary them without re-deriving the
// whole pipeline per scan point.
func FoldConstants(exclude map[expr.Symbol]bool) Stage {
	return func(m *model.Model) (*model.Model, error) {
		out := m.Clone()
		subst := make(map[expr.Symbol]expr.Expr)

		add := func(sym expr.Symbol, e expr.Expr) {
			if e == nil || (exclude != nil && exclude[sym]) {
				return
			}
			subst[sym] = e
		}

		for _, sym := range out.Parameters() {
			p, _ := out.Param(sym)
			if p.Rule != nil && p.Rule.Kind == model.RuleAssignment {
				add(sym, p.Rule.Expr)
				continue
			}
			add(sym, p.Value)
		}
		for _, sym := range out.Compartments() {
			c, _ := out.Compartment(sym)
			if c.Rule != nil && c.Rule.Kind == model.RuleAssignment {
				add(sym, c.Rule.Expr)
			}
		}
		for _, sym := range out.Reactions() {
			r, _ := out.Reaction(sym)
			for _, lp := range r.LocalParams {
				p, _ := out.Param(lp)
				add(lp, p.Value)
			}
		}

		for _, sym := range out.Reactions() {
			r, _ := out.Reaction(sym)
			folded, ok := expr.SubstToFixedPoint(r.RateLaw, subst, 64)
			if !ok {
				return nil, kinerr.Wrap(kinerr.SemanticError,
					"reaction %q: constant folding did not converge, possible cyclic parameter definition", r.Name)
			}
			r.RateLaw = folded
			for i, t := range r.Reactants {
				c, ok := expr.SubstToFixedPoint(t.Coeff, subst, 64)
				if !ok {
					return nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q: stoichiometry coefficient did not fold", r.Name)
				}
				r.Reactants[i].Coeff = c
			}
			for i, t := range r.Products {
				c, ok := expr.SubstToFixedPoint(t.Coeff, subst, 64)
				if !ok {
					return nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q: stoichiometry coefficient did not fold", r.Name)
				}
				r.Products[i].Coeff = c
			}
		}
		return out, nil
	}
}
