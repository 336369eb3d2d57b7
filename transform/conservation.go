package transform

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
)

// pivotTolerance is the magnitude below which a column is treated as
// already spanned by previously chosen pivot rows.
const pivotTolerance = 1e-9

// ConservationData is the result of AnalyzeConservation: the species
// partition and the matrices relating dependent species to independent
// ones.
type ConservationData struct {
	Species     []expr.Symbol // all species, reordered by the chosen permutation P
	Independent []expr.Symbol // Species[:NInd]
	Dependent   []expr.Symbol // Species[NInd:]
	NInd        int

	Gamma *mat.Dense // NDep x NSpecies, left null space of S: Gamma * P * S = 0
	L0    *mat.Dense // NDep x NInd link-zero matrix: (P*S)[NInd:] = L0 * S_ind

	Constants      []expr.Symbol // placeholder symbols c_1..c_NDep
	ConstantValues []float64     // Gamma * P * x0, the conserved amounts
}

// StoichiometryMatrix assembles the net-stoichiometry matrix S
// (species x reactions), S[i][j] = product coefficient minus reactant
// coefficient of species i in reaction j. Every stoichiometry term must
// already be an expr.Const (see AssertConstantStoichiometry). Most
// reactions touch only a handful of species, so the matrix is accumulated
// in a sparse.SparseArray and densified afterward for the elimination
// routine below, which needs
// random row access.
func StoichiometryMatrix(m *model.Model) (*mat.Dense, []expr.Symbol, error) {
	species := m.Species()
	reactions := m.Reactions()
	idx := make(map[expr.Symbol]int, len(species))
	for i, s := range species {
		idx[s] = i
	}

	acc := sparse.ZerosSparse(len(species), len(reactions))
	for j, rsym := range reactions {
		r, _ := m.Reaction(rsym)
		for _, t := range r.Reactants {
			c, ok := t.Coeff.(expr.Const)
			if !ok {
				return nil, nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q has a non-constant stoichiometry coefficient", r.Name)
			}
			i := idx[t.Species]
			acc.Set(acc.Get(i, j)-c.Value(), i, j)
		}
		for _, t := range r.Products {
			c, ok := t.Coeff.(expr.Const)
			if !ok {
				return nil, nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q has a non-constant stoichiometry coefficient", r.Name)
			}
			i := idx[t.Species]
			acc.Set(acc.Get(i, j)+c.Value(), i, j)
		}
	}

	S := mat.NewDense(len(species), len(reactions), nil)
	for i := range species {
		for j := range reactions {
			if v := acc.Get(i, j); v != 0 {
				S.Set(i, j, v)
			}
		}
	}
	return S, species, nil
}

// AnalyzeConservation partitions m's species into an independent set and a
// dependent set tied to the independent set by stoichiometric conservation
// laws, via a pivoted, rank-revealing row reduction of the stoichiometry
// matrix. It returns a derived model
// with every dependent species replaced throughout by
// c + L0 * independent_species, the dependent species themselves removed,
// and one new constant parameter per conservation law holding the
// numeric conserved amount Gamma * P * x0.
func AnalyzeConservation(m *model.Model) (*model.Model, error) {
	derived, _, err := analyzeConservation(m)
	return derived, err
}

// AnalyzeConservationData is like AnalyzeConservation but also returns the
// ConservationData describing the partition, for callers (tests, the
// "conservation identity" property check) that need the matrices
// themselves rather than just the rewritten model.
func AnalyzeConservationData(m *model.Model) (*model.Model, *ConservationData, error) {
	return analyzeConservation(m)
}

func analyzeConservation(m *model.Model) (*model.Model, *ConservationData, error) {
	S, species, err := StoichiometryMatrix(m)
	if err != nil {
		return nil, nil, err
	}
	nSpecies, nReactions := S.Dims()

	perm := make([]int, nSpecies)
	for i := range perm {
		perm[i] = i
	}
	work := mat.DenseCopyOf(S)

	rank := 0
	for col := 0; col < nReactions && rank < nSpecies; col++ {
		best, bestVal := -1, pivotTolerance
		for row := rank; row < nSpecies; row++ {
			v := math.Abs(work.At(row, col))
			if v > bestVal {
				best, bestVal = row, v
			}
		}
		if best < 0 {
			continue
		}
		if best != rank {
			swapRows(work, rank, best)
			perm[rank], perm[best] = perm[best], perm[rank]
		}
		pivot := work.At(rank, col)
		for row := rank + 1; row < nSpecies; row++ {
			factor := work.At(row, col) / pivot
			if factor == 0 {
				continue
			}
			for c2 := col; c2 < nReactions; c2++ {
				work.Set(row, c2, work.At(row, c2)-factor*work.At(rank, c2))
			}
		}
		rank++
	}
	nInd := rank
	nDep := nSpecies - nInd

	// Build P*S from the original (un-eliminated) values, in permuted
	// row order, so S_ind and PSDep reflect the true stoichiometry.
	permutedS := mat.NewDense(nSpecies, nReactions, nil)
	for i, p := range perm {
		permutedS.SetRow(i, mat.Row(nil, p, S))
	}
	sInd := permutedS.Slice(0, nInd, 0, nReactions).(*mat.Dense)

	// gonum has no zero-row matrices, so with no dependent species L0 and
	// Gamma stay empty (0 x 0) rather than being sliced or allocated.
	l0, gamma := &mat.Dense{}, &mat.Dense{}
	if nDep > 0 {
		psDep := permutedS.Slice(nInd, nSpecies, 0, nReactions).(*mat.Dense)
		// Solve S_ind^T * L0^T = PSDep^T for L0^T (least squares; S_ind
		// has full row rank nInd by construction, and PSDep's rows lie
		// in S_ind's row space since rank(S) == nInd).
		var sIndT, psDepT mat.Dense
		sIndT.CloneFrom(sInd.T())
		psDepT.CloneFrom(psDep.T())
		var l0T mat.Dense
		if err := l0T.Solve(&sIndT, &psDepT); err != nil {
			return nil, nil, kinerr.Wrap(kinerr.NumericError, "conservation analysis: %v", err)
		}
		l0 = mat.NewDense(nDep, nInd, nil)
		l0.CloneFrom(l0T.T())
		gamma = mat.NewDense(nDep, nSpecies, nil)
	}

	for d := 0; d < nDep; d++ {
		for k := 0; k < nInd; k++ {
			gamma.Set(d, k, -l0.At(d, k))
		}
		gamma.Set(d, nInd+d, 1)
	}

	permutedSpecies := make([]expr.Symbol, nSpecies)
	for i, p := range perm {
		permutedSpecies[i] = species[p]
	}
	independent := permutedSpecies[:nInd]
	dependent := permutedSpecies[nInd:]

	x0 := make([]float64, nSpecies)
	for i, sym := range permutedSpecies {
		sp, _ := m.SpeciesDef(sym)
		v, err := m.EvaluateInitialValue(sp.InitValue)
		if err != nil {
			return nil, nil, kinerr.Wrap(kinerr.NumericError, "species %q: %v", sp.Name, err)
		}
		x0[i] = v
	}
	constVals := make([]float64, nDep)
	for d := 0; d < nDep; d++ {
		sum := 0.0
		for k := 0; k < nSpecies; k++ {
			sum += gamma.At(d, k) * x0[k]
		}
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return nil, nil, kinerr.Wrap(kinerr.NumericError, "conservation constant %d is not finite", d)
		}
		constVals[d] = sum
	}

	out := m.Clone()
	constants := make([]expr.Symbol, nDep)
	substitution := make(map[expr.Symbol]expr.Expr, nDep)
	for d := 0; d < nDep; d++ {
		name := fmt.Sprintf("cons_%d", d+1)
		p, err := out.AddParameter(name, true, expr.NewFloat(constVals[d]))
		if err != nil {
			return nil, nil, err
		}
		constants[d] = p.Symbol

		rhs := expr.Expr(expr.NewSym(p.Symbol, name))
		for k := 0; k < nInd; k++ {
			coeff := l0.At(d, k)
			if coeff == 0 {
				continue
			}
			rhs = expr.Add(rhs, expr.Mul(expr.NewFloat(coeff), expr.NewSym(independent[k], out.Name(independent[k]))))
		}
		substitution[dependent[d]] = rhs
	}

	for _, rsym := range out.Reactions() {
		r, _ := out.Reaction(rsym)
		folded, ok := expr.SubstToFixedPoint(r.RateLaw, substitution, 64)
		if !ok {
			return nil, nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q: conservation substitution did not converge", r.Name)
		}
		r.RateLaw = folded
	}
	for _, dep := range dependent {
		out.Remove(dep)
	}

	return out, &ConservationData{
		Species:        permutedSpecies,
		Independent:    independent,
		Dependent:      dependent,
		NInd:           nInd,
		Gamma:          gamma,
		L0:             l0,
		Constants:      constants,
		ConstantValues: constVals,
	}, nil
}

func swapRows(m *mat.Dense, i, j int) {
	if i == j {
		return
	}
	_, cols := m.Dims()
	for c := 0; c < cols; c++ {
		vi, vj := m.At(i, c), m.At(j, c)
		m.Set(i, c, vj)
		m.Set(j, c, vi)
	}
}
