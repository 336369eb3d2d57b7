package expr

// Diff returns the partial derivative of e with respect to sym.
func Diff(e Expr, sym Symbol) Expr {
	switch v := e.(type) {
	case Const:
		return Zero
	case Sym:
		if v.Symbol == sym {
			return One
		}
		return Zero
	case Sum:
		terms := make([]Expr, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = Diff(t, sym)
		}
		return Sum{Terms: terms}
	case Product:
		// Product rule over an n-ary product: d(c*f1*f2*...*fn) =
		// c * sum_i (df_i * prod_{j!=i} f_j).
		terms := make([]Expr, 0, len(v.Factors))
		for i := range v.Factors {
			d := Diff(v.Factors[i], sym)
			if IsZero(d) {
				continue
			}
			rest := make([]Expr, 0, len(v.Factors))
			rest = append(rest, d)
			for j, f := range v.Factors {
				if j != i {
					rest = append(rest, f)
				}
			}
			terms = append(terms, Product{Coeff: v.Coeff, Factors: rest})
		}
		return Add(terms...)
	case Pow:
		// d(base^n) = n * base^(n-1) * d(base)
		dBase := Diff(v.Base, sym)
		if IsZero(dBase) {
			return Zero
		}
		return Mul(NewInt(int64(v.Exp)), Pow{Base: v.Base, Exp: v.Exp - 1}, dBase)
	case PowExpr:
		// General case: d(base^exp) = base^exp * (dexp*log(base) + exp*dbase/base)
		dBase := Diff(v.Base, sym)
		dExp := Diff(v.Exp, sym)
		if IsZero(dBase) && IsZero(dExp) {
			return Zero
		}
		term1 := Mul(dExp, Log(v.Base))
		term2 := Mul(v.Exp, dBase, PowExpr{Base: v.Base, Exp: NewInt(-1)})
		return Mul(v, Add(term1, term2))
	case Call:
		dArg := Diff(v.Arg, sym)
		if IsZero(dArg) {
			return Zero
		}
		switch v.Fn {
		case FnExp:
			return Mul(Call{Fn: FnExp, Arg: v.Arg}, dArg)
		case FnLog:
			return Mul(dArg, PowExpr{Base: v.Arg, Exp: NewInt(-1)})
		case FnAbs:
			// d|x|/dx = sign(x); represented symbolically as x/|x|.
			return Mul(dArg, v.Arg, PowExpr{Base: v, Exp: NewInt(-1)})
		}
	}
	return Zero
}

// Grad returns the gradient of e with respect to syms, in order.
func Grad(e Expr, syms []Symbol) []Expr {
	out := make([]Expr, len(syms))
	for i, s := range syms {
		out[i] = Diff(e, s)
	}
	return out
}

// Hessian returns the symmetric matrix of second partials, stored in
// full (not colex-packed) form; callers in package sse pack the
// colexicographic blocks themselves.
func Hessian(e Expr, syms []Symbol) [][]Expr {
	n := len(syms)
	first := Grad(e, syms)
	h := make([][]Expr, n)
	for i := 0; i < n; i++ {
		h[i] = make([]Expr, n)
		for j := i; j < n; j++ {
			d := Diff(first[i], syms[j])
			h[i][j] = d
			h[j][i] = d
		}
	}
	return h
}
