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

// Package expr implements the immutable expression IR:
// constants, symbols, sums, products, powers and a small closed set of
// transcendental functions, with substitution, differentiation, series
// expansion and numeric evaluation.
//
// Symbols are minted by a per-Model Interner rather than a process-wide
// table, so a model's symbolic state is released with the model instead
// of accumulating for the life of the process.
package expr

import (
	"fmt"
	"math/big"
	"sort"
)

// Symbol is an opaque handle referencing a named variable. Expressions
// reference variables by identity, never by name.
type Symbol uint64

// Interner mints unique Symbols and remembers their printable names. One
// Interner belongs to exactly one Model; it is never shared or global.
type Interner struct {
	names []string
}

// NewInterner returns an empty symbol table.
func NewInterner() *Interner { return &Interner{} }

// New mints a fresh symbol with the given display name. Names need not be
// unique at the Interner level; uniqueness is enforced by the enclosing
// scope (package model).
func (in *Interner) New(name string) Symbol {
	s := Symbol(len(in.names))
	in.names = append(in.names, name)
	return s
}

// Clone returns an independent copy of the symbol table, sharing no
// storage with in. The parameter-scan driver clones the interner along
// with the model so each worker's symbolic derivation (which mints
// fresh SSE-state symbols) cannot race another worker's.
func (in *Interner) Clone() *Interner {
	return &Interner{names: append([]string(nil), in.names...)}
}

// Name returns the printable name of s.
func (in *Interner) Name(s Symbol) string {
	if int(s) >= len(in.names) {
		return fmt.Sprintf("<sym%d>", s)
	}
	return in.names[s]
}

// Fn names the supported transcendental functions.
type Fn int

const (
	FnExp Fn = iota
	FnLog
	FnAbs
)

func (f Fn) String() string {
	switch f {
	case FnExp:
		return "exp"
	case FnLog:
		return "log"
	case FnAbs:
		return "abs"
	default:
		return "?fn"
	}
}

// Expr is an immutable node in the expression tree. All concrete types in
// this package implement it; the set is closed (a sealed interface via
// an unexported method), so rewriters can match exhaustively instead of
// going through an open visitor hierarchy.
type Expr interface {
	isExpr()
	// Equal reports structural equality, normalizing commutative
	// children order first.
	Equal(Expr) bool
	// String renders conventional infix notation.
	String() string
}

// Const is a numeric literal. Exactly one of Rat or Float is meaningful,
// selected by IsRat; stoichiometry coefficients and other small integer
// literals are kept as exact rationals so AssertConstantStoichiometry
// never needs a float epsilon comparison.
type Const struct {
	IsRat bool
	Rat   *big.Rat
	Float float64
}

func (Const) isExpr() {}

// NewInt returns an exact integer constant.
func NewInt(n int64) Const { return Const{IsRat: true, Rat: big.NewRat(n, 1)} }

// NewRat returns an exact rational constant.
func NewRat(num, den int64) Const { return Const{IsRat: true, Rat: big.NewRat(num, den)} }

// NewFloat returns an inexact double-precision constant.
func NewFloat(f float64) Const { return Const{Float: f} }

// Value returns the constant as a float64.
func (c Const) Value() float64 {
	if c.IsRat {
		f, _ := c.Rat.Float64()
		return f
	}
	return c.Float
}

func (c Const) Equal(o Expr) bool {
	oc, ok := o.(Const)
	if !ok {
		return false
	}
	if c.IsRat && oc.IsRat {
		return c.Rat.Cmp(oc.Rat) == 0
	}
	return c.Value() == oc.Value()
}

func (c Const) String() string {
	if c.IsRat {
		if c.Rat.IsInt() {
			return c.Rat.RatString()
		}
		return c.Rat.RatString()
	}
	return fmt.Sprintf("%g", c.Float)
}

// Sym references a Symbol. Its display name must be resolved through the
// owning Interner; Sym itself carries nothing but the handle.
type Sym struct {
	Symbol Symbol
	// name is carried redundantly for a dependency-free String(); it is
	// not used by Equal, which compares only Symbol identity.
	name string
}

func (Sym) isExpr() {}

// NewSym builds a symbol reference; name is used only for printing.
func NewSym(s Symbol, name string) Sym { return Sym{Symbol: s, name: name} }

func (s Sym) Equal(o Expr) bool {
	os, ok := o.(Sym)
	return ok && os.Symbol == s.Symbol
}

func (s Sym) String() string {
	if s.name != "" {
		return s.name
	}
	return fmt.Sprintf("sym%d", s.Symbol)
}

// Sum is an n-ary sum of terms.
type Sum struct {
	Terms []Expr
}

func (Sum) isExpr() {}

func (s Sum) Equal(o Expr) bool {
	os, ok := o.(Sum)
	if !ok || len(os.Terms) != len(s.Terms) {
		return false
	}
	return sameMultiset(s.Terms, os.Terms)
}

func (s Sum) String() string {
	if len(s.Terms) == 0 {
		return "0"
	}
	out := s.Terms[0].String()
	for _, t := range s.Terms[1:] {
		out += " + " + t.String()
	}
	return "(" + out + ")"
}

// Product is an n-ary product of factors with an explicit leading
// coefficient, which keeps constant folding a single normalization step
// rather than a search through the factor list.
type Product struct {
	Coeff   Const
	Factors []Expr
}

func (Product) isExpr() {}

func (p Product) Equal(o Expr) bool {
	op, ok := o.(Product)
	if !ok || !p.Coeff.Equal(op.Coeff) || len(p.Factors) != len(op.Factors) {
		return false
	}
	return sameMultiset(p.Factors, op.Factors)
}

func (p Product) String() string {
	out := p.Coeff.String()
	for _, f := range p.Factors {
		out += "*" + f.String()
	}
	return "(" + out + ")"
}

// Pow is an integer power of a base expression.
type Pow struct {
	Base Expr
	Exp  int
}

func (Pow) isExpr() {}

func (p Pow) Equal(o Expr) bool {
	op, ok := o.(Pow)
	return ok && p.Exp == op.Exp && p.Base.Equal(op.Base)
}

func (p Pow) String() string { return fmt.Sprintf("%s^%d", p.Base.String(), p.Exp) }

// PowExpr is a symbolic (non-integer or variable) power.
type PowExpr struct {
	Base, Exp Expr
}

func (PowExpr) isExpr() {}

func (p PowExpr) Equal(o Expr) bool {
	op, ok := o.(PowExpr)
	return ok && p.Base.Equal(op.Base) && p.Exp.Equal(op.Exp)
}

func (p PowExpr) String() string { return fmt.Sprintf("%s^(%s)", p.Base.String(), p.Exp.String()) }

// Call applies a transcendental function to a single argument.
type Call struct {
	Fn  Fn
	Arg Expr
}

func (Call) isExpr() {}

func (c Call) Equal(o Expr) bool {
	oc, ok := o.(Call)
	return ok && c.Fn == oc.Fn && c.Arg.Equal(oc.Arg)
}

func (c Call) String() string { return fmt.Sprintf("%s(%s)", c.Fn, c.Arg) }

// sameMultiset reports whether a and b contain pairwise-Equal elements in
// some order, used so Sum/Product equality is insensitive to the
// caller's term ordering (structural equality modulo associativity and
// commutativity).
func sameMultiset(a, b []Expr) bool {
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && x.Equal(y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Size returns the node count of e, used to decide whether hash-consing
// during bytecode compilation pays off.
func Size(e Expr) int {
	switch v := e.(type) {
	case Const, Sym:
		return 1
	case Sum:
		n := 1
		for _, t := range v.Terms {
			n += Size(t)
		}
		return n
	case Product:
		n := 1
		for _, f := range v.Factors {
			n += Size(f)
		}
		return n
	case Pow:
		return 1 + Size(v.Base)
	case PowExpr:
		return 1 + Size(v.Base) + Size(v.Exp)
	case Call:
		return 1 + Size(v.Arg)
	default:
		return 1
	}
}

// Add builds a (non-simplified) n-ary sum.
func Add(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	return Sum{Terms: terms}
}

// Mul builds a (non-simplified) n-ary product with coefficient 1.
func Mul(factors ...Expr) Expr {
	if len(factors) == 1 {
		return factors[0]
	}
	return Product{Coeff: NewInt(1), Factors: factors}
}

// Neg negates e.
func Neg(e Expr) Expr { return Product{Coeff: NewInt(-1), Factors: []Expr{e}} }

// Sub builds a - b.
func Sub(a, b Expr) Expr { return Add(a, Neg(b)) }

// Div builds a / b as a * b^-1.
func Div(a, b Expr) Expr { return Mul(a, PowExpr{Base: b, Exp: NewInt(-1)}) }

// Exp, Log, Abs build the corresponding transcendental calls.
func Exp(a Expr) Expr { return Call{Fn: FnExp, Arg: a} }
func Log(a Expr) Expr { return Call{Fn: FnLog, Arg: a} }
func Abs(a Expr) Expr { return Call{Fn: FnAbs, Arg: a} }

// Zero and One are the canonical constants used throughout simplification.
var (
	Zero = NewInt(0)
	One  = NewInt(1)
)

// IsZero reports whether e is the literal constant zero.
func IsZero(e Expr) bool {
	c, ok := e.(Const)
	return ok && c.Value() == 0
}

// sortSymbols is a small helper used by callers that need a deterministic
// iteration order over a symbol set (e.g. printing a substitution map).
func sortSymbols(syms []Symbol) []Symbol {
	out := append([]Symbol(nil), syms...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
