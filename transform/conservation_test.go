package transform

import (
	"math"
	"testing"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
)

// buildMichaelisMenten builds E + S <-> ES -> E + P as four irreversible
// reactions (the binding step pre-split), with conservation groups
// E+ES = E_tot and S+ES+P = S_tot.
func buildMichaelisMenten(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	cell, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	if err != nil {
		t.Fatal(err)
	}
	k1, _ := m.AddParameter("k1", true, expr.NewFloat(0.01))
	km1, _ := m.AddParameter("km1", true, expr.NewFloat(0.1))
	k2, _ := m.AddParameter("k2", true, expr.NewFloat(0.1))

	e, _ := m.AddSpecies("E", cell.Symbol, false, expr.NewFloat(10))
	s, _ := m.AddSpecies("S", cell.Symbol, false, expr.NewFloat(100))
	es, _ := m.AddSpecies("ES", cell.Symbol, false, expr.NewFloat(0))
	p, _ := m.AddSpecies("P", cell.Symbol, false, expr.NewFloat(0))

	bind, _ := m.AddReaction("bind", false)
	bind.Reactants = []model.StoichTerm{{Species: e.Symbol, Coeff: expr.NewInt(1)}, {Species: s.Symbol, Coeff: expr.NewInt(1)}}
	bind.Products = []model.StoichTerm{{Species: es.Symbol, Coeff: expr.NewInt(1)}}
	bind.RateLaw = expr.Mul(expr.NewSym(k1.Symbol, "k1"), expr.Mul(expr.NewSym(e.Symbol, "E"), expr.NewSym(s.Symbol, "S")))

	unbind, _ := m.AddReaction("unbind", false)
	unbind.Reactants = []model.StoichTerm{{Species: es.Symbol, Coeff: expr.NewInt(1)}}
	unbind.Products = []model.StoichTerm{{Species: e.Symbol, Coeff: expr.NewInt(1)}, {Species: s.Symbol, Coeff: expr.NewInt(1)}}
	unbind.RateLaw = expr.Mul(expr.NewSym(km1.Symbol, "km1"), expr.NewSym(es.Symbol, "ES"))

	cat, _ := m.AddReaction("cat", false)
	cat.Reactants = []model.StoichTerm{{Species: es.Symbol, Coeff: expr.NewInt(1)}}
	cat.Products = []model.StoichTerm{{Species: e.Symbol, Coeff: expr.NewInt(1)}, {Species: p.Symbol, Coeff: expr.NewInt(1)}}
	cat.RateLaw = expr.Mul(expr.NewSym(k2.Symbol, "k2"), expr.NewSym(es.Symbol, "ES"))

	return m
}

func TestAnalyzeConservationMichaelisMenten(t *testing.T) {
	m := buildMichaelisMenten(t)
	_, data, err := AnalyzeConservationData(m)
	if err != nil {
		t.Fatal(err)
	}
	// 4 species, 2 independent conservation laws (E_tot, S_tot) => rank(S) == 2.
	if data.NInd != 2 {
		t.Fatalf("got NInd=%d, want 2", data.NInd)
	}
	if len(data.Dependent) != 2 {
		t.Fatalf("got %d dependent species, want 2", len(data.Dependent))
	}

	wantSums := map[float64]bool{10: true, 100: true}
	for _, v := range data.ConstantValues {
		found := false
		for want := range wantSums {
			if math.Abs(v-want) < 1e-6 {
				found = true
			}
		}
		if !found {
			t.Errorf("unexpected conservation constant %v, want one of {10, 100}", v)
		}
	}
}

func TestAnalyzeConservationRemovesDependentSpecies(t *testing.T) {
	m := buildMichaelisMenten(t)
	out, err := AnalyzeConservation(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Species()) != 2 {
		t.Fatalf("got %d species after reduction, want 2", len(out.Species()))
	}
}

func TestStoichiometryMatrixRejectsNonConstantCoefficient(t *testing.T) {
	m := model.New()
	cell, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	a, _ := m.AddSpecies("A", cell.Symbol, false, expr.NewFloat(1))
	k, _ := m.AddParameter("k", true, expr.NewFloat(1))
	r, _ := m.AddReaction("R1", false)
	r.Reactants = []model.StoichTerm{{Species: a.Symbol, Coeff: expr.NewSym(k.Symbol, "k")}}
	r.RateLaw = expr.NewFloat(1)

	if _, _, err := StoichiometryMatrix(m); err == nil {
		t.Fatal("expected non-constant stoichiometry error")
	}
}
