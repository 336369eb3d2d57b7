package ssa

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
)

// birthDeath builds the ∅ -> X (rate k), X -> ∅ (rate gamma·X) fixture
// with particle-count units and unit volume, starting from x0 copies.
func birthDeath(t *testing.T, k, gamma, x0 float64) *model.Model {
	t.Helper()
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	x, err := m.AddSpecies("X", comp.Symbol, false, expr.NewFloat(x0))
	require.NoError(t, err)
	pk, err := m.AddParameter("k", true, expr.NewFloat(k))
	require.NoError(t, err)
	pg, err := m.AddParameter("gamma", true, expr.NewFloat(gamma))
	require.NoError(t, err)

	birth, err := m.AddReaction("birth", false)
	require.NoError(t, err)
	birth.Products = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	birth.RateLaw = expr.NewSym(pk.Symbol, "k")

	death, err := m.AddReaction("death", false)
	require.NoError(t, err)
	death.Reactants = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	death.RateLaw = expr.Mul(expr.NewSym(pg.Symbol, "gamma"), expr.NewSym(x.Symbol, "X"))
	return m
}

func TestDirectDeterministicForFixedSeedAndWorkers(t *testing.T) {
	for _, workers := range []int{1, 4} {
		a, err := NewDirect(birthDeath(t, 10, 1, 10), 200, 42, workers, bytecode.OptLevel1)
		require.NoError(t, err)
		b, err := NewDirect(birthDeath(t, 10, 1, 10), 200, 42, workers, bytecode.OptLevel1)
		require.NoError(t, err)

		require.NoError(t, a.Run(5))
		require.NoError(t, b.Run(5))
		assert.True(t, mat.Equal(a.State(), b.State()),
			"identical seed and worker count %d must reproduce the state matrix exactly", workers)

		// A second Run must continue the trajectories, not restart them.
		require.NoError(t, a.Run(5))
		require.NoError(t, b.Run(5))
		assert.True(t, mat.Equal(a.State(), b.State()))
		assert.InDelta(t, 10.0, a.Time(0), 1e-12)
	}
}

func TestOptimizedStationaryMoments(t *testing.T) {
	const n = 10000
	s, err := NewOptimized(birthDeath(t, 10, 1, 10), n, 7, 1, bytecode.OptLevel1)
	require.NoError(t, err)
	require.NoError(t, s.Run(50))

	mean, variance := s.MeanVariance(0)
	// Stationary distribution is Poisson(k/gamma) = Poisson(10):
	// mean 10 with standard error sqrt(10/n) ≈ 0.032, variance 10.
	assert.InDelta(t, 10.0, mean, 0.1)
	assert.InDelta(t, 10.0, variance, 1.0)
}

func TestNextReactionMatchesDirect(t *testing.T) {
	const n = 10000
	direct, err := NewDirect(birthDeath(t, 10, 1, 10), n, 11, 1, bytecode.OptLevel1)
	require.NoError(t, err)
	nrm, err := NewNextReaction(birthDeath(t, 10, 1, 10), n, 13, 1, bytecode.OptLevel1)
	require.NoError(t, err)

	require.NoError(t, direct.Run(50))
	require.NoError(t, nrm.Run(50))

	dMean, dVar := direct.MeanVariance(0)
	nMean, nVar := nrm.MeanVariance(0)
	sigma := math.Sqrt(10.0 / n)
	assert.InDelta(t, dMean, nMean, 4*sigma+0.05)
	assert.InDelta(t, dVar, nVar, 1.5)
}

func TestAbsorbingStateFreezesRealization(t *testing.T) {
	// Pure death from 5 copies: every realization is absorbed at X = 0
	// well before t = 200, and freezing is a query, not an error.
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	x, err := m.AddSpecies("X", comp.Symbol, false, expr.NewFloat(5))
	require.NoError(t, err)
	death, err := m.AddReaction("death", false)
	require.NoError(t, err)
	death.Reactants = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	death.RateLaw = expr.NewSym(x.Symbol, "X")

	s, err := NewDirect(m, 50, 3, 2, bytecode.OptLevel0)
	require.NoError(t, err)
	require.NoError(t, s.Run(200))

	assert.Equal(t, 50, s.FrozenCount())
	for e := 0; e < 50; e++ {
		assert.Equal(t, 0.0, s.State().At(e, 0))
		assert.InDelta(t, 200.0, s.Time(e), 1e-12)
	}
}

func TestRejectsNonPositiveInitialCount(t *testing.T) {
	_, err := NewDirect(birthDeath(t, 10, 1, 0), 10, 1, 1, bytecode.OptLevel0)
	require.Error(t, err)
}

func TestDepGraphBirthDeath(t *testing.T) {
	m := birthDeath(t, 10, 1, 10)
	s, err := NewOptimized(m, 1, 1, 1, bytecode.OptLevel0)
	require.NoError(t, err)

	// Birth changes X, which the death law reads: both propensities are
	// affected. Death changes X too, but the birth law reads nothing.
	assert.ElementsMatch(t, []int{0, 1}, s.dep.Affects(0))
	assert.ElementsMatch(t, []int{1}, s.dep.Affects(1))
}
