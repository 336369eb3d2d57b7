package sse

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
)

// DeriveOptions configures Derive.
type DeriveOptions struct {
	// Mean is the conservation-reduced model's independent-species
	// symbols x_1..x_n, the rate-equation block of the state.
	Mean []expr.Symbol

	// Propensities is the reaction rate law of every reaction, indexed
	// the same way as Stoich's columns, each a function of Mean.
	Propensities []expr.Expr

	// Stoich is D = S_ind, the reduced stoichiometry matrix (n_ind x
	// n_reactions), as plain float64: stoichiometry is constant by the
	// time a model reaches this engine.
	Stoich [][]float64

	// Omega is V, the vector of per-independent-species compartment
	// size symbols; typically every entry is the same symbol
	// when the network has a single well-mixed compartment.
	Omega []expr.Symbol

	// Epsilon is a formal symbol, not otherwise free in Propensities,
	// used only to perform the 1/Ω system-size expansion that produces
	// each propensity's first-order correction F^(1).
	Epsilon expr.Symbol

	// Interner mints the auxiliary SSE-state symbols (covariance, EMRE,
	// third-moment, IOS blocks).
	Interner *expr.Interner

	// Name resolves a symbol's printable name, for the expr.Sym nodes
	// Derive builds when referencing opts.Mean/opts.Omega/opts.Epsilon.
	// May be nil, in which case those symbols print as "sym<N>".
	Name func(expr.Symbol) string

	// Level truncates the hierarchy; see Level's doc comment.
	Level Level
}

func (o DeriveOptions) name(sym expr.Symbol) string {
	if o.Name == nil {
		return ""
	}
	return o.Name(sym)
}

// Update is Derive's output: the symbolic update vector for the flat
// SSE state layout and its Jacobian with respect to that
// same state, ready for package bytecode to compile.
type Update struct {
	Sizes    Sizes
	State    *State
	Vector   []expr.Expr   // length Sizes.Total
	Jacobian [][]expr.Expr // Sizes.Total x Sizes.Total, d Vector[i]/d state[j]
}

// blocks holds the derived symbolic RE/J/H/Phi/B/B1/B3 coefficients,
// each already contracted with D and V so its entries are
// directly usable by the update-vector formulas.
type blocks struct {
	n int

	f  []expr.Expr // propensities, f[r]
	f1 []expr.Expr // first-order-in-1/Ω corrections, f1[r]

	re    []expr.Expr      // RE[i]
	j     [][]expr.Expr    // J[i][k]
	h     [][][]expr.Expr  // H[i][a][b]
	phi   [][][][]expr.Expr // Phi[i][a][b][c], IOS only
	b     [][]expr.Expr    // B[i][j]
	b1    [][]expr.Expr    // B^(1)[i][j]
	b3    [][][]expr.Expr  // B3[i][j][k], IOS only
	f1vec []expr.Expr      // F^(1)[i] = V^-1 D f1
}

// Derive symbolically constructs the SSE update vector and Jacobian for
// opts. The reduced model's species must already be
// conservation-reduced, extensive, and constant-folded (transform
// package's pipeline) before calling Derive.
func Derive(opts DeriveOptions) (*Update, error) {
	n := len(opts.Mean)
	if n == 0 {
		return nil, kinerr.Wrap(kinerr.InternalError, "sse.Derive: no independent species")
	}
	if len(opts.Omega) != n {
		return nil, kinerr.Wrap(kinerr.InternalError, "sse.Derive: Omega must have one entry per independent species")
	}
	for _, row := range opts.Stoich {
		if len(row) != len(opts.Propensities) {
			return nil, kinerr.Wrap(kinerr.InternalError, "sse.Derive: Stoich column count does not match Propensities")
		}
	}

	bl, err := buildBlocks(opts)
	if err != nil {
		return nil, err
	}

	state := NewState(opts.Interner, opts.Mean, opts.Level)
	sizes := state.Sizes

	vec := make([]expr.Expr, sizes.Total)
	copy(vec[sizes.OffRE:sizes.OffRE+sizes.NRE], bl.re)

	if opts.Level >= LevelLNA {
		assembleLNA(bl, state, vec)
	}
	if opts.Level >= LevelEMRE {
		assembleEMRE(bl, state, vec)
	}
	if opts.Level >= LevelIOS {
		assembleIOS(bl, state, vec)
	}

	syms := state.AllSymbols()
	jac := make([][]expr.Expr, sizes.Total)
	for i := range jac {
		jac[i] = make([]expr.Expr, sizes.Total)
		for k := range syms {
			jac[i][k] = expr.Diff(vec[i], syms[k])
		}
	}

	return &Update{Sizes: sizes, State: state, Vector: vec, Jacobian: jac}, nil
}

// buildBlocks computes f, f^(1), RE, J, H, Φ, B, B^(1), B3, each
// already contracted with D = Stoich and scaled by V^-1 = 1/Omega_i.
func buildBlocks(opts DeriveOptions) (*blocks, error) {
	n := len(opts.Mean)
	nr := len(opts.Propensities)
	bl := &blocks{n: n, f: opts.Propensities}

	// First-order-in-1/Ω correction of every propensity, via the
	// system-size expansion x_i -> x_i/epsilon (so that epsilon plays
	// the role of 1/Omega and x_i plays the role of the concentration
	// the expansion is carried out in).
	bl.f1 = make([]expr.Expr, nr)
	substAmount := make(map[expr.Symbol]expr.Expr, n)
	epsExpr := expr.NewSym(opts.Epsilon, "eps")
	for _, x := range opts.Mean {
		substAmount[x] = expr.Div(expr.NewSym(x, opts.name(x)), epsExpr)
	}
	for r, f := range opts.Propensities {
		scaled := expr.Subst(f, substAmount)
		g := expr.Mul(epsExpr, scaled)
		bl.f1[r] = expr.SeriesCoeff(g, opts.Epsilon, 1)
	}

	// Jacobian/Hessian/third-derivative of every propensity w.r.t. the
	// independent species, needed before contracting with D.
	dfdx := make([][]expr.Expr, nr) // dfdx[r][k]
	d2fdx := make([][][]expr.Expr, nr)
	d3fdx := make([][][][]expr.Expr, nr)
	for r, f := range opts.Propensities {
		dfdx[r] = expr.Grad(f, opts.Mean)
		if opts.Level >= LevelEMRE {
			d2fdx[r] = expr.Hessian(f, opts.Mean)
		}
		if opts.Level >= LevelIOS {
			d3fdx[r] = thirdDerivative(f, opts.Mean)
		}
	}

	vInv := func(i int) expr.Expr {
		return expr.PowExpr{Base: expr.NewSym(opts.Omega[i], opts.name(opts.Omega[i])), Exp: expr.NewInt(-1)}
	}

	bl.re = make([]expr.Expr, n)
	bl.j = make([][]expr.Expr, n)
	bl.f1vec = make([]expr.Expr, n)
	for i := 0; i < n; i++ {
		terms := make([]expr.Expr, 0, nr)
		f1terms := make([]expr.Expr, 0, nr)
		for r := 0; r < nr; r++ {
			d := opts.Stoich[i][r]
			if d == 0 {
				continue
			}
			terms = append(terms, expr.Mul(expr.NewFloat(d), bl.f[r]))
			f1terms = append(f1terms, expr.Mul(expr.NewFloat(d), bl.f1[r]))
		}
		bl.re[i] = expr.Mul(vInv(i), expr.Add(nonEmpty(terms)...))
		bl.f1vec[i] = expr.Mul(vInv(i), expr.Add(nonEmpty(f1terms)...))

		bl.j[i] = make([]expr.Expr, n)
		for k := 0; k < n; k++ {
			kterms := make([]expr.Expr, 0, nr)
			for r := 0; r < nr; r++ {
				d := opts.Stoich[i][r]
				if d == 0 || expr.IsZero(dfdx[r][k]) {
					continue
				}
				kterms = append(kterms, expr.Mul(expr.NewFloat(d), dfdx[r][k]))
			}
			bl.j[i][k] = expr.Mul(vInv(i), expr.Add(nonEmpty(kterms)...))
		}
	}

	if opts.Level >= LevelEMRE {
		bl.h = make([][][]expr.Expr, n)
		for i := 0; i < n; i++ {
			bl.h[i] = make([][]expr.Expr, n)
			for a := 0; a < n; a++ {
				bl.h[i][a] = make([]expr.Expr, n)
				for b := 0; b < n; b++ {
					terms := make([]expr.Expr, 0, nr)
					for r := 0; r < nr; r++ {
						d := opts.Stoich[i][r]
						if d == 0 {
							continue
						}
						terms = append(terms, expr.Mul(expr.NewFloat(d), d2fdx[r][a][b]))
					}
					bl.h[i][a][b] = expr.Mul(vInv(i), expr.Add(nonEmpty(terms)...))
				}
			}
		}
	}

	if opts.Level >= LevelIOS {
		bl.phi = make([][][][]expr.Expr, n)
		for i := 0; i < n; i++ {
			bl.phi[i] = make([][][]expr.Expr, n)
			for a := 0; a < n; a++ {
				bl.phi[i][a] = make([][]expr.Expr, n)
				for b := 0; b < n; b++ {
					bl.phi[i][a][b] = make([]expr.Expr, n)
					for c := 0; c < n; c++ {
						terms := make([]expr.Expr, 0, nr)
						for r := 0; r < nr; r++ {
							d := opts.Stoich[i][r]
							if d == 0 {
								continue
							}
							terms = append(terms, expr.Mul(expr.NewFloat(d), d3fdx[r][a][b][c]))
						}
						bl.phi[i][a][b][c] = expr.Mul(vInv(i), expr.Add(nonEmpty(terms)...))
					}
				}
			}
		}
	}

	// Diffusion matrix B = V^-1 D diag(f) D^T V^-1 and its first-order
	// and third-order analogues: since diag(f) is diagonal, the sum
	// over reaction pairs collapses to a single sum over r.
	bl.b = make([][]expr.Expr, n)
	bl.b1 = make([][]expr.Expr, n)
	for i := 0; i < n; i++ {
		bl.b[i] = make([]expr.Expr, n)
		bl.b1[i] = make([]expr.Expr, n)
		for j := 0; j < n; j++ {
			terms := make([]expr.Expr, 0, nr)
			terms1 := make([]expr.Expr, 0, nr)
			for r := 0; r < nr; r++ {
				di, dj := opts.Stoich[i][r], opts.Stoich[j][r]
				if di == 0 || dj == 0 {
					continue
				}
				terms = append(terms, expr.Mul(expr.NewFloat(di*dj), bl.f[r]))
				terms1 = append(terms1, expr.Mul(expr.NewFloat(di*dj), bl.f1[r]))
			}
			bl.b[i][j] = expr.Mul(vInv(i), vInv(j), expr.Add(nonEmpty(terms)...))
			bl.b1[i][j] = expr.Mul(vInv(i), vInv(j), expr.Add(nonEmpty(terms1)...))
		}
	}

	if opts.Level >= LevelIOS {
		bl.b3 = make([][][]expr.Expr, n)
		for i := 0; i < n; i++ {
			bl.b3[i] = make([][]expr.Expr, n)
			for j := 0; j < n; j++ {
				bl.b3[i][j] = make([]expr.Expr, n)
				for k := 0; k < n; k++ {
					terms := make([]expr.Expr, 0, nr)
					for r := 0; r < nr; r++ {
						di, dj, dk := opts.Stoich[i][r], opts.Stoich[j][r], opts.Stoich[k][r]
						if di == 0 || dj == 0 || dk == 0 {
							continue
						}
						terms = append(terms, expr.Mul(expr.NewFloat(di*dj*dk), bl.f[r]))
					}
					bl.b3[i][j][k] = expr.Mul(vInv(i), vInv(j), vInv(k), expr.Add(nonEmpty(terms)...))
				}
			}
		}
	}

	return bl, nil
}

// thirdDerivative returns the full (not colex-packed) third-derivative
// tensor of e w.r.t. syms, mirroring expr.Hessian's shape one order up.
func thirdDerivative(e expr.Expr, syms []expr.Symbol) [][][]expr.Expr {
	n := len(syms)
	hess := expr.Hessian(e, syms)
	out := make([][][]expr.Expr, n)
	for a := 0; a < n; a++ {
		out[a] = make([][]expr.Expr, n)
		for b := 0; b < n; b++ {
			out[a][b] = make([]expr.Expr, n)
			for c := 0; c < n; c++ {
				out[a][b][c] = expr.Diff(hess[a][b], syms[c])
			}
		}
	}
	return out
}

// nonEmpty returns terms unchanged unless it is empty, in which case it
// returns {Zero}, since expr.Add of zero terms is ambiguous to callers
// that always want a single expression back.
func nonEmpty(terms []expr.Expr) []expr.Expr {
	if len(terms) == 0 {
		return []expr.Expr{expr.Zero}
	}
	return terms
}

// assembleLNA fills the covariance block of vec: dC_ij/dt = Σ_k (J_ik
// C_kj + J_jk C_ik) + B_ij.
func assembleLNA(bl *blocks, st *State, vec []expr.Expr) {
	n := bl.n
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			terms := make([]expr.Expr, 0, 2*n+1)
			for k := 0; k < n; k++ {
				if !expr.IsZero(bl.j[i][k]) {
					terms = append(terms, expr.Mul(bl.j[i][k], st.Cov2(k, j)))
				}
				if !expr.IsZero(bl.j[j][k]) {
					terms = append(terms, expr.Mul(bl.j[j][k], st.Cov2(i, k)))
				}
			}
			terms = append(terms, bl.b[i][j])
			vec[st.Sizes.OffCov+ColexIndex(i, j)] = expr.Add(terms...)
		}
	}
}

// assembleEMRE fills the EMRE block: dm_i/dt = Σ_k J_ik m_k + ½ Σ_jk
// H_i(j,k) C_jk + F^(1)_i.
func assembleEMRE(bl *blocks, st *State, vec []expr.Expr) {
	n := bl.n
	for i := 0; i < n; i++ {
		terms := make([]expr.Expr, 0, n+n*n+1)
		for k := 0; k < n; k++ {
			if !expr.IsZero(bl.j[i][k]) {
				terms = append(terms, expr.Mul(bl.j[i][k], st.Emre1(k)))
			}
		}
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				if expr.IsZero(bl.h[i][j][k]) {
					continue
				}
				terms = append(terms, expr.Mul(expr.NewFloat(0.5), bl.h[i][j][k], st.Cov2(j, k)))
			}
		}
		terms = append(terms, bl.f1vec[i])
		vec[st.Sizes.OffEmre+i] = expr.Add(terms...)
	}
}
