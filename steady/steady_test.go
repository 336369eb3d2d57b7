package steady_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/scan"
	"github.com/spatialmodel/kinetics/sse"
	"github.com/spatialmodel/kinetics/steady"
)

// birthDeath builds ∅ -> X (rate k), X -> ∅ (rate gamma·X) in
// particle-count units with unit volume.
func birthDeath(t *testing.T, k, gamma float64) *model.Model {
	t.Helper()
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	x, err := m.AddSpecies("X", comp.Symbol, false, expr.NewFloat(1))
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

// michaelisMenten builds E + S ⇌ ES -> E + P with the enzyme written as
// a single reversible binding reaction, so the fixture also exercises
// the reversible-splitting pass on the way to steady state.
func michaelisMenten(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	e, err := m.AddSpecies("E", comp.Symbol, false, expr.NewFloat(10))
	require.NoError(t, err)
	s, err := m.AddSpecies("S", comp.Symbol, false, expr.NewFloat(100))
	require.NoError(t, err)
	es, err := m.AddSpecies("ES", comp.Symbol, false, expr.NewFloat(0))
	require.NoError(t, err)
	p, err := m.AddSpecies("P", comp.Symbol, false, expr.NewFloat(0))
	require.NoError(t, err)
	k1, err := m.AddParameter("k1", true, expr.NewFloat(0.01))
	require.NoError(t, err)
	km1, err := m.AddParameter("km1", true, expr.NewFloat(0.1))
	require.NoError(t, err)
	k2, err := m.AddParameter("k2", true, expr.NewFloat(0.1))
	require.NoError(t, err)

	bind, err := m.AddReaction("bind", true)
	require.NoError(t, err)
	bind.Reactants = []model.StoichTerm{
		{Species: e.Symbol, Coeff: expr.NewInt(1)},
		{Species: s.Symbol, Coeff: expr.NewInt(1)},
	}
	bind.Products = []model.StoichTerm{{Species: es.Symbol, Coeff: expr.NewInt(1)}}
	bind.RateLaw = expr.Sub(
		expr.Mul(expr.NewSym(k1.Symbol, "k1"), expr.NewSym(e.Symbol, "E"), expr.NewSym(s.Symbol, "S")),
		expr.Mul(expr.NewSym(km1.Symbol, "km1"), expr.NewSym(es.Symbol, "ES")),
	)

	cat, err := m.AddReaction("cat", false)
	require.NoError(t, err)
	cat.Reactants = []model.StoichTerm{{Species: es.Symbol, Coeff: expr.NewInt(1)}}
	cat.Products = []model.StoichTerm{
		{Species: e.Symbol, Coeff: expr.NewInt(1)},
		{Species: p.Symbol, Coeff: expr.NewInt(1)},
	}
	cat.RateLaw = expr.Mul(expr.NewSym(k2.Symbol, "k2"), expr.NewSym(es.Symbol, "ES"))
	return m
}

func TestBirthDeathSteadyState(t *testing.T) {
	p, err := scan.Prepare(birthDeath(t, 10, 1), nil, sse.LevelLNA, bytecode.OptLevel1)
	require.NoError(t, err)

	r, err := steady.Solve(p.Func(), p.Update.Sizes, sse.LevelLNA, p.X0, steady.Options{})
	require.NoError(t, err)

	// RE steady state X* = k/gamma = 10 and LNA variance 10 (the
	// stationary law is Poisson(10)).
	assert.InDelta(t, 10.0, r.State[r.Sizes.OffRE], 1e-8)
	assert.InDelta(t, 10.0, r.State[r.Sizes.OffCov], 1e-8)

	// d(RE)/dX = -gamma = -1 is also the only eigenvalue.
	assert.InDelta(t, -1.0, r.Jacobian.At(0, 0), 1e-8)
	assert.InDelta(t, -1.0, real(r.Leading), 1e-8)
	assert.Less(t, real(r.Leading), 0.0)
}

func TestBirthDeathEMRECorrectionVanishes(t *testing.T) {
	// Both propensities are linear, so the mesoscopic mean correction
	// is exactly zero.
	p, err := scan.Prepare(birthDeath(t, 10, 1), nil, sse.LevelEMRE, bytecode.OptLevel1)
	require.NoError(t, err)
	r, err := steady.Solve(p.Func(), p.Update.Sizes, sse.LevelEMRE, p.X0, steady.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, r.State[r.Sizes.OffEmre], 1e-8)
}

func TestMichaelisMentenConservedSteadyState(t *testing.T) {
	p, err := scan.Prepare(michaelisMenten(t), nil, sse.LevelLNA, bytecode.OptLevel1)
	require.NoError(t, err)

	// Two conservation laws leave two independent species.
	assert.Equal(t, 2, p.Data.NInd)
	assert.Len(t, p.Data.Dependent, 2)

	r, err := steady.Solve(p.Func(), p.Update.Sizes, sse.LevelLNA, p.X0, steady.Options{})
	require.NoError(t, err)

	// Reconstruct all four species and check the conserved totals
	// E + ES = 10 and S + ES + P = 100 to machine precision.
	values := map[string]float64{}
	for i, n := range p.Names {
		values[n] = r.State[r.Sizes.OffRE+i]
	}
	dep := p.DependentValues(r.State)
	for d, name := range p.DepNames {
		values[name] = dep[d]
	}
	require.Len(t, values, 4)
	assert.InDelta(t, 10.0, values["E"]+values["ES"], 1e-9)
	assert.InDelta(t, 100.0, values["S"]+values["ES"]+values["P"], 1e-9)

	// The catalytic step drains the substrate completely.
	assert.InDelta(t, 0.0, values["S"], 1e-6)
	assert.InDelta(t, 0.0, values["ES"], 1e-6)
	assert.InDelta(t, 100.0, values["P"], 1e-6)

	// Reported Jacobian is strictly stable.
	assert.Less(t, real(r.Leading), 0.0)
}

func TestAutocatalyticGrowthIsUnstable(t *testing.T) {
	// X -> 2X at rate k·X has its only root at X = 0, where the
	// Jacobian eigenvalue is +k: the solver must refuse to report it.
	m := model.New()
	m.SpeciesHasSubstanceUnits = true
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	require.NoError(t, err)
	x, err := m.AddSpecies("X", comp.Symbol, false, expr.NewFloat(1))
	require.NoError(t, err)
	pk, err := m.AddParameter("k", true, expr.NewFloat(2))
	require.NoError(t, err)
	grow, err := m.AddReaction("grow", false)
	require.NoError(t, err)
	grow.Reactants = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(1)}}
	grow.Products = []model.StoichTerm{{Species: x.Symbol, Coeff: expr.NewInt(2)}}
	grow.RateLaw = expr.Mul(expr.NewSym(pk.Symbol, "k"), expr.NewSym(x.Symbol, "X"))

	p, err := scan.Prepare(m, nil, sse.LevelRE, bytecode.OptLevel1)
	require.NoError(t, err)
	_, err = steady.Solve(p.Func(), p.Update.Sizes, sse.LevelRE, p.X0, steady.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, steady.ErrUnstableJacobian), "got %v", err)
	assert.True(t, kinerr.Is(err, kinerr.NumericError))
}
