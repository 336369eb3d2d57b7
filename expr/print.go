package expr

// Sprint renders e in conventional infix notation using in to resolve
// symbol names. The printer's output is parseable back into an equal
// expression tree modulo associativity/commutativity normalization;
// this package does not implement the parser side (package sbmlio
// carries one for the exchange format's rate-law strings).
func Sprint(e Expr, in *Interner) string {
	return renderWithNamer(e, func(s Symbol) string {
		if in != nil {
			return in.Name(s)
		}
		return ""
	})
}

// SprintNamed is Sprint with a caller-supplied name resolver, for
// callers whose symbols span more than one naming context (e.g. the
// exchange-format writer, which prints model-scope and reaction-local
// names through the model's own lookup).
func SprintNamed(e Expr, name func(Symbol) string) string {
	return renderWithNamer(e, name)
}

func renderWithNamer(e Expr, name func(Symbol) string) string {
	switch v := e.(type) {
	case Const:
		return v.String()
	case Sym:
		return name(v.Symbol)
	case Sum:
		s := ""
		for i, t := range v.Terms {
			if i > 0 {
				s += " + "
			}
			s += renderWithNamer(t, name)
		}
		return "(" + s + ")"
	case Product:
		s := v.Coeff.String()
		for _, f := range v.Factors {
			s += "*" + renderWithNamer(f, name)
		}
		return "(" + s + ")"
	case Pow:
		return renderWithNamer(v.Base, name) + "^" + itoa(v.Exp)
	case PowExpr:
		return renderWithNamer(v.Base, name) + "^(" + renderWithNamer(v.Exp, name) + ")"
	case Call:
		return v.Fn.String() + "(" + renderWithNamer(v.Arg, name) + ")"
	default:
		return "?"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
