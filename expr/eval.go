package expr

import (
	"fmt"
	"math"

	"github.com/spatialmodel/kinetics/kinerr"
)

// Eval substitutes numeric values for every free symbol and reduces to a
// double. It returns a SemanticError-wrapped error if a free symbol has
// no entry in values, and a NumericError-wrapped error if the result is
// non-finite.
func Eval(e Expr, values map[Symbol]float64) (float64, error) {
	switch v := e.(type) {
	case Const:
		return v.Value(), nil
	case Sym:
		f, ok := values[v.Symbol]
		if !ok {
			return 0, kinerr.Wrap(kinerr.SemanticError, "unresolved free symbol %q during evaluation", v.String())
		}
		return f, nil
	case Sum:
		var sum float64
		for _, t := range v.Terms {
			f, err := Eval(t, values)
			if err != nil {
				return 0, err
			}
			sum += f
		}
		return checkFinite(sum)
	case Product:
		prod := v.Coeff.Value()
		for _, f := range v.Factors {
			fv, err := Eval(f, values)
			if err != nil {
				return 0, err
			}
			prod *= fv
		}
		return checkFinite(prod)
	case Pow:
		b, err := Eval(v.Base, values)
		if err != nil {
			return 0, err
		}
		return checkFinite(intPow(b, v.Exp))
	case PowExpr:
		b, err := Eval(v.Base, values)
		if err != nil {
			return 0, err
		}
		ex, err := Eval(v.Exp, values)
		if err != nil {
			return 0, err
		}
		return checkFinite(math.Pow(b, ex))
	case Call:
		a, err := Eval(v.Arg, values)
		if err != nil {
			return 0, err
		}
		switch v.Fn {
		case FnExp:
			return checkFinite(math.Exp(a))
		case FnLog:
			return checkFinite(math.Log(a))
		case FnAbs:
			return checkFinite(math.Abs(a))
		}
	}
	return 0, kinerr.Wrap(kinerr.InternalError, "eval: unhandled expression node %T", e)
}

func intPow(base float64, exp int) float64 {
	if exp < 0 {
		return 1 / intPow(base, -exp)
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func checkFinite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, kinerr.Wrap(kinerr.NumericError, "non-finite result %v", f)
	}
	return f, nil
}

// must panics on error; used only in tests and by call sites that have
// already validated their inputs cannot fail.
func must(f float64, err error) float64 {
	if err != nil {
		panic(fmt.Sprintf("expr: %v", err))
	}
	return f
}
