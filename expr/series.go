package expr

// Series returns the truncated Taylor expansion of e around sym=0, up to
// and including the order-th derivative term, i.e.
//
//	sum_{k=0}^{order} (1/k!) * d^k e/d sym^k |_{sym=0} * sym^k
//
// Package sse does not call Series; it takes the single first-order
// coefficient it needs from SeriesCoeff below.
func Series(e Expr, sym Symbol, order int) Expr {
	terms := make([]Expr, 0, order+1)
	cur := e
	fact := 1.0
	for k := 0; k <= order; k++ {
		if k > 0 {
			fact *= float64(k)
		}
		at0 := Subst(cur, map[Symbol]Expr{sym: Zero})
		coeff := Mul(NewFloat(1/fact), at0)
		if k == 0 {
			terms = append(terms, coeff)
		} else {
			terms = append(terms, Mul(coeff, Pow{Base: Sym{Symbol: sym}, Exp: k}))
		}
		if k < order {
			cur = Diff(cur, sym)
		}
	}
	return Add(terms...)
}

// SeriesCoeff returns just the order-th Taylor coefficient (without the
// sym^order factor), i.e. (1/order!) * d^order e/d sym^order |_{sym=0}.
// sse.Derive uses it at order 1 to build each propensity's first-order
// correction f^(1); f itself is the propensity as given.
func SeriesCoeff(e Expr, sym Symbol, order int) Expr {
	cur := e
	fact := 1.0
	for k := 1; k <= order; k++ {
		fact *= float64(k)
		cur = Diff(cur, sym)
	}
	at0 := Subst(cur, map[Symbol]Expr{sym: Zero})
	if fact == 1 {
		return at0
	}
	return Mul(NewFloat(1/fact), at0)
}

// Coeff extracts the coefficient of sym^degree in e, treating e as a
// polynomial in sym: the degree-th derivative at sym=0 divided by
// degree!, so Coeff(e, s, d) equals SeriesCoeff(e, s, d).
func Coeff(e Expr, sym Symbol, degree int) Expr {
	cur := e
	for k := 0; k < degree; k++ {
		cur = Diff(cur, sym)
	}
	at0 := Subst(cur, map[Symbol]Expr{sym: Zero})
	fact := 1.0
	for k := 2; k <= degree; k++ {
		fact *= float64(k)
	}
	if fact == 1 {
		return at0
	}
	return Mul(NewFloat(1/fact), at0)
}
