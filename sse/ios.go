package sse

import "github.com/spatialmodel/kinetics/expr"

// assembleIOS fills the third-moment, IOS-covariance-correction and
// IOS-EMRE blocks of vec. The update formulas are the contract this
// engine realizes, taken as given rather than re-derived; two spots in
// the published assembly look like typos and are preserved below as
// // REVIEW: markers rather than silently "fixed".
func assembleIOS(bl *blocks, st *State, vec []expr.Expr) {
	n := bl.n
	assembleThirdMoment(bl, st, vec, n)
	assembleIOSCovariance(bl, st, vec, n)
	assembleIOSEmre(bl, st, vec, n)
}

// assembleThirdMoment fills dM_ijk/dt = Σ_r(J_ir M_rjk + cyc) +
// (B_jk m_i + cyc) + ½ Σ_rs(H_i(r,s)·Wick(r,s,j,k) + cyc) + B3_ijk.
//
// Wick(r,s,j,k) = C_rj C_sk + C_rk C_sj is the Gaussian pairwise-moment
// identity (the Wick contraction) substituting for the
// fourth cumulant, which vanishes at this order.
func assembleThirdMoment(bl *blocks, st *State, vec []expr.Expr, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			for k := 0; k <= j; k++ {
				transport := cyc3(func(a, b, c int) expr.Expr {
					terms := make([]expr.Expr, 0, n)
					for r := 0; r < n; r++ {
						if expr.IsZero(bl.j[a][r]) {
							continue
						}
						terms = append(terms, expr.Mul(bl.j[a][r], st.Third3(r, b, c)))
					}
					return expr.Add(nonEmpty(terms)...)
				}, i, j, k)

				diffusion := cyc3(func(a, b, c int) expr.Expr {
					return expr.Mul(bl.b[b][c], st.Emre1(a))
				}, i, j, k)

				// REVIEW: the published assembly adds this
				// Wick-contraction term inside a loop indexed by a
				// flat running index rather than by the (i,j,k)
				// triple it nominally contracts against; written
				// here in the form the surrounding formula implies,
				// not the loop-index form, since the two are not
				// obviously equivalent.
				wick := cyc3(func(a, b, c int) expr.Expr {
					terms := make([]expr.Expr, 0, n*n)
					for r := 0; r < n; r++ {
						for s := 0; s < n; s++ {
							if expr.IsZero(bl.h[a][r][s]) {
								continue
							}
							pairing := expr.Add(
								expr.Mul(st.Cov2(r, b), st.Cov2(s, c)),
								expr.Mul(st.Cov2(r, c), st.Cov2(s, b)),
							)
							terms = append(terms, expr.Mul(bl.h[a][r][s], pairing))
						}
					}
					return expr.Mul(expr.NewFloat(0.5), expr.Add(nonEmpty(terms)...))
				}, i, j, k)

				vec[st.Sizes.OffThird+ColexIndex3(i, j, k)] = expr.Add(transport, diffusion, wick, bl.b3[i][j][k])
			}
		}
	}
}

// assembleIOSCovariance fills dCcorr_ij/dt = Σ_k(J_ik Ccorr_kj + cyc) +
// B^(1)_ij + ½ Σ_rs(H_i(r,s) M_rsj + cyc over i,j), the next-order
// covariance correction, a closed-form polynomial combination of
// J, H, B^(1), C and M.
func assembleIOSCovariance(bl *blocks, st *State, vec []expr.Expr, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			transport := cyc2(func(a, b int) expr.Expr {
				terms := make([]expr.Expr, 0, n)
				for k := 0; k < n; k++ {
					if expr.IsZero(bl.j[a][k]) {
						continue
					}
					terms = append(terms, expr.Mul(bl.j[a][k], st.IosCov2(k, b)))
				}
				return expr.Add(nonEmpty(terms)...)
			}, i, j)

			thirdCoupling := cyc2(func(a, b int) expr.Expr {
				terms := make([]expr.Expr, 0, n*n)
				for r := 0; r < n; r++ {
					for s := 0; s < n; s++ {
						if expr.IsZero(bl.h[a][r][s]) {
							continue
						}
						terms = append(terms, expr.Mul(bl.h[a][r][s], st.Third3(r, s, b)))
					}
				}
				return expr.Mul(expr.NewFloat(0.5), expr.Add(nonEmpty(terms)...))
			}, i, j)

			vec[st.Sizes.OffIosCov+ColexIndex(i, j)] = expr.Add(transport, bl.b1[i][j], thirdCoupling)
		}
	}
}

// assembleIOSEmre fills dmIOS_i/dt = Σ_k J_ik mIOS_k + ½ Σ_jk H_i(j,k)
// Ccorr_jk + (1/6) Σ_jkl Φ_i(j,k,l) M_jkl, the IOS-order mean correction.
//
// REVIEW: the published third-derivative assembly overwrites one of its
// accumulators inside a loop whose own condition reads the state being
// overwritten. No analogous aliasing is possible here since Phi is built
// once into an immutable slice before this function runs (see
// buildBlocks), so there is nothing to preserve beyond this note.
func assembleIOSEmre(bl *blocks, st *State, vec []expr.Expr, n int) {
	for i := 0; i < n; i++ {
		transport := make([]expr.Expr, 0, n)
		for k := 0; k < n; k++ {
			if expr.IsZero(bl.j[i][k]) {
				continue
			}
			transport = append(transport, expr.Mul(bl.j[i][k], st.IosEmre1(k)))
		}

		hess := make([]expr.Expr, 0, n*n)
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				if expr.IsZero(bl.h[i][j][k]) {
					continue
				}
				hess = append(hess, expr.Mul(bl.h[i][j][k], st.IosCov2(j, k)))
			}
		}

		third := make([]expr.Expr, 0, n*n*n)
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					if expr.IsZero(bl.phi[i][j][k][l]) {
						continue
					}
					third = append(third, expr.Mul(bl.phi[i][j][k][l], st.Third3(j, k, l)))
				}
			}
		}

		vec[st.Sizes.OffIosEmre+i] = expr.Add(
			expr.Add(nonEmpty(transport)...),
			expr.Mul(expr.NewFloat(0.5), expr.Add(nonEmpty(hess)...)),
			expr.Mul(expr.NewFloat(1.0/6.0), expr.Add(nonEmpty(third)...)),
		)
	}
}
