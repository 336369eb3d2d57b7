package sbmlio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/transform"
)

const enzymeFixture = `<?xml version="1.0" encoding="UTF-8"?>
<sbml level="2" version="4">
  <model id="enzyme" substanceUnits="item">
    <listOfCompartments>
      <compartment id="cell" spatialDimensions="3" size="1" constant="true"/>
    </listOfCompartments>
    <listOfSpecies>
      <species id="E" compartment="cell" initialAmount="10" hasOnlySubstanceUnits="true" constant="false"/>
      <species id="S" compartment="cell" initialAmount="100" hasOnlySubstanceUnits="true" constant="false"/>
      <species id="ES" compartment="cell" initialAmount="0" hasOnlySubstanceUnits="true" constant="false"/>
      <species id="P" compartment="cell" initialAmount="0" hasOnlySubstanceUnits="true" constant="false"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter id="k1" value="0.01" constant="true"/>
      <parameter id="km1" value="0.1" constant="true"/>
    </listOfParameters>
    <listOfReactions>
      <reaction id="bind" reversible="true">
        <listOfReactants>
          <speciesReference species="E" stoichiometry="1"/>
          <speciesReference species="S" stoichiometry="1"/>
        </listOfReactants>
        <listOfProducts>
          <speciesReference species="ES" stoichiometry="1"/>
        </listOfProducts>
        <kineticLaw formula="k1*E*S - km1*ES"/>
      </reaction>
      <reaction id="cat" reversible="false">
        <listOfReactants>
          <speciesReference species="ES" stoichiometry="1"/>
        </listOfReactants>
        <listOfProducts>
          <speciesReference species="E" stoichiometry="1"/>
          <speciesReference species="P" stoichiometry="1"/>
        </listOfProducts>
        <kineticLaw formula="k2*ES">
          <listOfParameters>
            <parameter id="k2" value="0.1"/>
          </listOfParameters>
        </kineticLaw>
      </reaction>
    </listOfReactions>
  </model>
</sbml>`

// rateAtInitial evaluates reaction name's rate law with every variable
// at its initial value, the semantic fingerprint used to compare a
// model against its re-imported round trip.
func rateAtInitial(t *testing.T, m *model.Model, name string) float64 {
	t.Helper()
	sym, ok := m.Lookup(name)
	require.True(t, ok, "reaction %q", name)
	r, _ := m.Reaction(sym)
	v, err := m.EvaluateInitialValue(r.RateLaw)
	require.NoError(t, err)
	return v
}

func TestReadEnzymeFixture(t *testing.T) {
	m, err := Read(strings.NewReader(enzymeFixture))
	require.NoError(t, err)

	assert.True(t, m.SpeciesHasSubstanceUnits)
	assert.False(t, m.SubstanceIsMole)
	assert.Len(t, m.Species(), 4)
	assert.Len(t, m.Reactions(), 2)

	// k1·E·S − km1·ES = 0.01·10·100 − 0 = 10 at the initial state.
	assert.InDelta(t, 10.0, rateAtInitial(t, m, "bind"), 1e-12)
	// The local parameter k2 resolves in the kinetic-law scope.
	assert.InDelta(t, 0.0, rateAtInitial(t, m, "cat"), 1e-12)

	bindSym, _ := m.Lookup("bind")
	bind, _ := m.Reaction(bindSym)
	assert.True(t, bind.Reversible)
	assert.Len(t, bind.Reactants, 2)
}

func TestRoundTripPreservesDynamics(t *testing.T) {
	m1, err := Read(strings.NewReader(enzymeFixture))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m1))
	m2, err := Read(&buf)
	require.NoError(t, err)

	// Same species set, same initial values.
	require.Len(t, m2.Species(), len(m1.Species()))
	for _, sym := range m1.Species() {
		name := m1.Name(sym)
		sym2, ok := m2.Lookup(name)
		require.True(t, ok, "species %q lost in round trip", name)
		sp1, _ := m1.SpeciesDef(sym)
		sp2, _ := m2.SpeciesDef(sym2)
		v1, err := m1.EvaluateInitialValue(sp1.InitValue)
		require.NoError(t, err)
		v2, err := m2.EvaluateInitialValue(sp2.InitValue)
		require.NoError(t, err)
		assert.Equal(t, v1, v2, "species %q", name)
	}

	// Same stoichiometry matrix (species and reactions keep their
	// definition order through the round trip).
	s1, _, err := transform.StoichiometryMatrix(m1)
	require.NoError(t, err)
	s2, _, err := transform.StoichiometryMatrix(m2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(s1, s2))

	// Same rate-law values at the shared initial state.
	for _, sym := range m1.Reactions() {
		name := m1.Name(sym)
		assert.InDelta(t, rateAtInitial(t, m1, name), rateAtInitial(t, m2, name), 1e-12, "reaction %q", name)
	}
	assert.Equal(t, m1.SpeciesHasSubstanceUnits, m2.SpeciesHasSubstanceUnits)
	assert.Equal(t, m1.SubstanceIsMole, m2.SubstanceIsMole)
}

func TestReadRejectsEvents(t *testing.T) {
	doc := `<sbml level="2" version="4"><model id="bad">
	  <listOfEvents><event id="e1"/></listOfEvents>
	</model></sbml>`
	_, err := Read(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, kinerr.Is(err, kinerr.UnsupportedFeature))
}

func TestReadRejectsMixedSpeciesModes(t *testing.T) {
	doc := `<sbml level="2" version="4"><model id="bad">
	  <listOfCompartments><compartment id="c" size="1"/></listOfCompartments>
	  <listOfSpecies>
	    <species id="A" compartment="c" initialAmount="1" hasOnlySubstanceUnits="true"/>
	    <species id="B" compartment="c" initialConcentration="1"/>
	  </listOfSpecies>
	</model></sbml>`
	_, err := Read(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, kinerr.Is(err, kinerr.UnsupportedFeature))
}

func TestParseFormula(t *testing.T) {
	in := expr.NewInterner()
	x := in.New("x")
	k := in.New("k")
	resolve := func(name string) (expr.Expr, bool) {
		switch name {
		case "x":
			return expr.NewSym(x, "x"), true
		case "k":
			return expr.NewSym(k, "k"), true
		}
		return nil, false
	}
	vals := map[expr.Symbol]float64{x: 3, k: 2}

	cases := []struct {
		formula string
		want    float64
	}{
		{"k*x", 6},
		{"k*x - x", 3},
		{"x^2", 9},
		{"x^-1", 1.0 / 3},
		{"(k + x)/x", 5.0 / 3},
		{"-x + 2*x", 3},
		{"2.5e1 * k", 50},
		{"abs(k - x)", 1},
		{"log(exp(x))", 3},
	}
	for _, c := range cases {
		e, err := ParseFormula(c.formula, resolve)
		require.NoError(t, err, c.formula)
		got, err := expr.Eval(e, vals)
		require.NoError(t, err, c.formula)
		assert.InDelta(t, c.want, got, 1e-12, c.formula)
	}

	_, err := ParseFormula("k*unknown", resolve)
	require.Error(t, err)
	_, err = ParseFormula("sin(x)", resolve)
	require.Error(t, err)
	assert.True(t, kinerr.Is(err, kinerr.UnsupportedFeature))
}
