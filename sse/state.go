package sse

import (
	"fmt"

	"github.com/spatialmodel/kinetics/expr"
)

// State names and mints the symbols making up the SSE state vector,
// beyond the n_ind independent-species symbols themselves,
// which the caller already owns (they are the RE block).
type State struct {
	Sizes Sizes

	Mean []expr.Symbol // the caller's independent-species symbols, reused as-is

	Cov     []expr.Symbol // packed colex(i,j), i>=j
	Emre    []expr.Symbol
	Third   []expr.Symbol // packed colex3(i,j,k), i>=j>=k
	IosCov  []expr.Symbol
	IosEmre []expr.Symbol

	names map[expr.Symbol]string
	in    *expr.Interner
}

// NewState mints the auxiliary SSE-state symbols in in, for a model with
// independent species mean, truncated at level.
func NewState(in *expr.Interner, mean []expr.Symbol, level Level) *State {
	n := len(mean)
	sizes := NewSizes(n, level)
	s := &State{Sizes: sizes, Mean: mean, in: in, names: make(map[expr.Symbol]string)}

	if level >= LevelLNA {
		s.Cov = make([]expr.Symbol, sizes.NCov)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				s.Cov[ColexIndex(i, j)] = s.mint(fmt.Sprintf("C_%d_%d", i, j))
			}
		}
	}
	if level >= LevelEMRE {
		s.Emre = make([]expr.Symbol, n)
		for i := 0; i < n; i++ {
			s.Emre[i] = s.mint(fmt.Sprintf("m_%d", i))
		}
	}
	if level >= LevelIOS {
		s.Third = make([]expr.Symbol, sizes.NThird)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				for k := 0; k <= j; k++ {
					s.Third[ColexIndex3(i, j, k)] = s.mint(fmt.Sprintf("M_%d_%d_%d", i, j, k))
				}
			}
		}
		s.IosCov = make([]expr.Symbol, sizes.NCov)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				s.IosCov[ColexIndex(i, j)] = s.mint(fmt.Sprintf("Ccorr_%d_%d", i, j))
			}
		}
		s.IosEmre = make([]expr.Symbol, n)
		for i := 0; i < n; i++ {
			s.IosEmre[i] = s.mint(fmt.Sprintf("mIOS_%d", i))
		}
	}
	return s
}

func (s *State) mint(name string) expr.Symbol {
	sym := s.in.New(name)
	s.names[sym] = name
	return sym
}

// Name returns the printable name of a symbol minted by this State.
func (s *State) Name(sym expr.Symbol) string { return s.names[sym] }

// sym builds an expr.Sym reference to one of this State's own symbols.
func (s *State) sym(sym expr.Symbol) expr.Expr { return expr.NewSym(sym, s.names[sym]) }

// Cov2 returns the covariance entry C_ij as an expression, symmetric in
// (i,j): C_ij and C_ji resolve to the same packed symbol.
func (s *State) Cov2(i, j int) expr.Expr {
	if len(s.Cov) == 0 {
		return expr.Zero
	}
	return s.sym(s.Cov[ColexIndex(i, j)])
}

// Emre1 returns the EMRE correction m_i as an expression.
func (s *State) Emre1(i int) expr.Expr {
	if len(s.Emre) == 0 {
		return expr.Zero
	}
	return s.sym(s.Emre[i])
}

// Third3 returns the third central moment M_ijk, fully symmetric in its
// three indices.
func (s *State) Third3(i, j, k int) expr.Expr {
	if len(s.Third) == 0 {
		return expr.Zero
	}
	return s.sym(s.Third[ColexIndex3(i, j, k)])
}

// IosCov2 returns the IOS covariance correction Ccorr_ij, symmetric.
func (s *State) IosCov2(i, j int) expr.Expr {
	if len(s.IosCov) == 0 {
		return expr.Zero
	}
	return s.sym(s.IosCov[ColexIndex(i, j)])
}

// IosEmre1 returns the IOS-EMRE correction mIOS_i.
func (s *State) IosEmre1(i int) expr.Expr {
	if len(s.IosEmre) == 0 {
		return expr.Zero
	}
	return s.sym(s.IosEmre[i])
}

// AllSymbols returns every symbol in the flat SSE state vector, in
// layout order: mean, covariance, EMRE, third moment, IOS covariance,
// IOS-EMRE.
func (s *State) AllSymbols() []expr.Symbol {
	out := make([]expr.Symbol, 0, s.Sizes.Total)
	out = append(out, s.Mean...)
	out = append(out, s.Cov...)
	out = append(out, s.Emre...)
	out = append(out, s.Third...)
	out = append(out, s.IosCov...)
	out = append(out, s.IosEmre...)
	return out
}
