package transform

import (
	"testing"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
)

func TestNormalizeExtensiveToIntensiveDividesByCompartment(t *testing.T) {
	m := model.New()
	cell, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(2))
	k, _ := m.AddParameter("k", true, expr.NewFloat(1))
	a, _ := m.AddSpecies("A", cell.Symbol, false, expr.NewFloat(10))

	r, _ := m.AddReaction("R1", false)
	r.Reactants = []model.StoichTerm{{Species: a.Symbol, Coeff: expr.NewInt(1)}}
	r.RateLaw = expr.Mul(expr.NewSym(k.Symbol, "k"), expr.NewSym(a.Symbol, "A"))

	out, err := Normalize(Intensive)(m)
	if err != nil {
		t.Fatal(err)
	}
	or, _ := out.Reaction(r.Symbol)
	values := map[expr.Symbol]float64{k.Symbol: 3, a.Symbol: 10, cell.Symbol: 2}
	got, err := expr.Eval(or.RateLaw, values)
	if err != nil {
		t.Fatal(err)
	}
	// k * (A/V) = 3 * (10/2) = 15
	if got != 15 {
		t.Errorf("got %v, want 15", got)
	}
}

func TestNormalizeMoleBaseUnitAppliesAvogadro(t *testing.T) {
	m := model.New()
	m.SubstanceIsMole = true
	cell, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	a, _ := m.AddSpecies("A", cell.Symbol, false, expr.NewFloat(1))
	r, _ := m.AddReaction("R1", false)
	r.Reactants = []model.StoichTerm{{Species: a.Symbol, Coeff: expr.NewInt(1)}}
	r.RateLaw = expr.NewSym(a.Symbol, "A")

	out, err := Normalize(Extensive)(m)
	if err != nil {
		t.Fatal(err)
	}
	or, _ := out.Reaction(r.Symbol)
	got, err := expr.Eval(or.RateLaw, map[expr.Symbol]float64{a.Symbol: 1, cell.Symbol: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != model.AvogadroNumber {
		t.Errorf("got %v, want Avogadro's number", got)
	}
}
