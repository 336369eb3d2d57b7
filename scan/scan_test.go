package scan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/sse"
)

// birthDeath builds ∅ -> X (rate k), X -> ∅ (rate gamma·X), returning
// the model and the gamma parameter symbol for scanning.
func birthDeath(t *testing.T) (*model.Model, expr.Symbol) {
	t.Helper()
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	x, err := m.AddSpecies("X", comp.Symbol, false, expr.NewFloat(1))
	require.NoError(t, err)
	pk, err := m.AddParameter("k", true, expr.NewFloat(10))
	require.NoError(t, err)
	pg, err := m.AddParameter("gamma", true, expr.NewFloat(1))
	require.NoError(t, err)

	birth, err := m.AddReaction("birth", false)
	require.NoError(t, err)
	birth.Products = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	birth.RateLaw = expr.NewSym(pk.Symbol, "k")

	death, err := m.AddReaction("death", false)
	require.NoError(t, err)
	death.Reactants = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	death.RateLaw = expr.Mul(expr.NewSym(pg.Symbol, "gamma"), expr.NewSym(x.Symbol, "X"))
	return m, pg.Symbol
}

func TestScanSteadyStatesAcrossGamma(t *testing.T) {
	m, gamma := birthDeath(t)
	var sets []Set
	for _, g := range []float64{0.5, 1, 2, 4} {
		sets = append(sets, Set{gamma: g})
	}
	res, err := Run(m, []expr.Symbol{gamma}, sets, Config{Level: sse.LevelLNA, Opt: bytecode.OptLevel1, Workers: 1})
	require.NoError(t, err)

	for i, set := range sets {
		want := 10 / set[gamma] // X* = k/gamma
		assert.InDelta(t, want, res.Values.At(i, res.Sizes.OffRE), 1e-7, "set %d", i)
		assert.InDelta(t, want, res.Values.At(i, res.Sizes.OffCov), 1e-7,
			"LNA variance equals the mean for a birth-death process")
		assert.False(t, res.Failed[i])
	}
}

func TestScanWorkerCountDoesNotChangeResults(t *testing.T) {
	m, gamma := birthDeath(t)
	var sets []Set
	for i := 0; i < 32; i++ {
		sets = append(sets, Set{gamma: 0.25 + 0.25*float64(i)})
	}

	one, err := Run(m, []expr.Symbol{gamma}, sets, Config{Level: sse.LevelEMRE, Opt: bytecode.OptLevel1, Workers: 1})
	require.NoError(t, err)
	eight, err := Run(m, []expr.Symbol{gamma}, sets, Config{Level: sse.LevelEMRE, Opt: bytecode.OptLevel1, Workers: 8})
	require.NoError(t, err)

	assert.True(t, mat.Equal(one.Values, eight.Values),
		"scan results must be independent of the worker count")
}

func TestScanNumericFailureYieldsNaNRow(t *testing.T) {
	m, gamma := birthDeath(t)
	// gamma < 0 makes the death propensity a growth term: the root is
	// negative and the Jacobian positive, a NumericError either way.
	sets := []Set{{gamma: 1}, {gamma: -1}, {gamma: 2}}
	res, err := Run(m, []expr.Symbol{gamma}, sets, Config{Level: sse.LevelRE, Opt: bytecode.OptLevel1, Workers: 2})
	require.NoError(t, err, "a NumericError on one set must not abort the scan")

	assert.False(t, res.Failed[0])
	assert.True(t, res.Failed[1])
	assert.False(t, res.Failed[2])
	assert.True(t, math.IsNaN(res.Values.At(1, res.Sizes.OffRE)))
	assert.InDelta(t, 10.0, res.Values.At(0, res.Sizes.OffRE), 1e-7)
	assert.InDelta(t, 5.0, res.Values.At(2, res.Sizes.OffRE), 1e-7)
}
