package transform

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
)

// Mode selects the species representation a kinetic law's species symbols
// denote: extensive (amounts) or intensive (concentrations).
type Mode int

const (
	Extensive Mode = iota
	Intensive
)

// Normalize rewrites every reaction's rate law (and, transitively, every
// expression referencing a species symbol) so that species symbols are
// interpreted in the target mode, converting extensive↔intensive by
// substituting x ↦ x/V (extensive→intensive) or x ↦ x·V
// (intensive→extensive) for every species x with enclosing compartment V.
// The substitution goes through a fresh temporary symbol first so that a
// species symbol appearing as part of V's own definition (a 0D
// compartment sized by a species, for instance) isn't captured by its own
// substitution.
//
// If the model's substance base unit is mole (Model.SubstanceIsMole),
// Normalize also multiplies every rate law by Avogadro's number so that
// propensities come out in molecules/time rather than moles/time; this
// runs once regardless of target, since the SSA and SSE layers both
// operate on molecule counts.
func Normalize(target Mode) Stage {
	return func(m *model.Model) (*model.Model, error) {
		out := m.Clone()

		subst := make(map[expr.Symbol]expr.Expr)
		tmp := make(map[expr.Symbol]expr.Expr)
		for _, sym := range out.Species() {
			sp, _ := out.SpeciesDef(sym)
			vSym := sp.Compartment
			vExpr := expr.NewSym(vSym, out.Name(vSym))
			spExpr := expr.NewSym(sym, out.Name(sym))

			fresh := out.Interner.New("$normtmp$" + out.Name(sym))
			freshExpr := expr.NewSym(fresh, "$tmp")
			tmp[sym] = freshExpr

			var replacement expr.Expr
			switch target {
			case Intensive:
				replacement = expr.Div(spExpr, vExpr)
			default:
				replacement = expr.Mul(spExpr, vExpr)
			}
			subst[fresh] = replacement
		}

		rewrite := func(e expr.Expr) expr.Expr {
			if e == nil {
				return nil
			}
			staged := expr.Subst(e, tmp)
			return expr.Subst(staged, subst)
		}

		for _, sym := range out.Reactions() {
			r, _ := out.Reaction(sym)
			r.RateLaw = rewrite(r.RateLaw)
			if out.SubstanceIsMole {
				r.RateLaw = expr.Mul(r.RateLaw, expr.NewFloat(model.AvogadroNumber))
			}
		}
		return out, nil
	}
}
