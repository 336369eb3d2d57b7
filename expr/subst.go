package expr

// Subst returns e with every symbol in m replaced by its mapped
// expression. Substitution is single-pass (not closed to a fixed point);
// callers needing a fixed point (package transform's constant folding)
// iterate Subst themselves.
func Subst(e Expr, m map[Symbol]Expr) Expr {
	switch v := e.(type) {
	case Const:
		return v
	case Sym:
		if r, ok := m[v.Symbol]; ok {
			return r
		}
		return v
	case Sum:
		terms := make([]Expr, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = Subst(t, m)
		}
		return Sum{Terms: terms}
	case Product:
		factors := make([]Expr, len(v.Factors))
		for i, f := range v.Factors {
			factors[i] = Subst(f, m)
		}
		return Product{Coeff: v.Coeff, Factors: factors}
	case Pow:
		return Pow{Base: Subst(v.Base, m), Exp: v.Exp}
	case PowExpr:
		return PowExpr{Base: Subst(v.Base, m), Exp: Subst(v.Exp, m)}
	case Call:
		return Call{Fn: v.Fn, Arg: Subst(v.Arg, m)}
	default:
		return e
	}
}

// FreeSymbols returns the set of symbols e depends on.
func FreeSymbols(e Expr) map[Symbol]bool {
	out := make(map[Symbol]bool)
	collectFree(e, out)
	return out
}

func collectFree(e Expr, out map[Symbol]bool) {
	switch v := e.(type) {
	case Sym:
		out[v.Symbol] = true
	case Sum:
		for _, t := range v.Terms {
			collectFree(t, out)
		}
	case Product:
		for _, f := range v.Factors {
			collectFree(f, out)
		}
	case Pow:
		collectFree(v.Base, out)
	case PowExpr:
		collectFree(v.Base, out)
		collectFree(v.Exp, out)
	case Call:
		collectFree(v.Arg, out)
	}
}

// SubstToFixedPoint repeatedly applies the substitution map m to e until
// no further symbol in m's domain appears free in the result, or maxIter
// is reached (a cycle in m is an InternalError-class invariant violation
// left to the caller to detect via the returned bool).
func SubstToFixedPoint(e Expr, m map[Symbol]Expr, maxIter int) (Expr, bool) {
	cur := e
	for i := 0; i < maxIter; i++ {
		next := Subst(cur, m)
		if next.Equal(cur) {
			return next, true
		}
		cur = next
	}
	return cur, false
}
