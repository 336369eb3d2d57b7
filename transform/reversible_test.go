package transform

import (
	"testing"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/model"
)

func buildReversibleMassAction(t *testing.T) (*model.Model, func(name string) expr.Symbol) {
	t.Helper()
	m := model.New()
	cell, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	if err != nil {
		t.Fatal(err)
	}
	kf, err := m.AddParameter("kf", true, expr.NewFloat(2))
	if err != nil {
		t.Fatal(err)
	}
	kr, err := m.AddParameter("kr", true, expr.NewFloat(1))
	if err != nil {
		t.Fatal(err)
	}
	a, err := m.AddSpecies("A", cell.Symbol, false, expr.NewFloat(10))
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.AddSpecies("B", cell.Symbol, false, expr.NewFloat(0))
	if err != nil {
		t.Fatal(err)
	}

	r, err := m.AddReaction("R1", true)
	if err != nil {
		t.Fatal(err)
	}
	r.Reactants = []model.StoichTerm{{Species: a.Symbol, Coeff: expr.NewInt(1)}}
	r.Products = []model.StoichTerm{{Species: b.Symbol, Coeff: expr.NewInt(1)}}
	// rate = kf*A - kr*B
	r.RateLaw = expr.Sub(
		expr.Mul(expr.NewSym(kf.Symbol, "kf"), expr.NewSym(a.Symbol, "A")),
		expr.Mul(expr.NewSym(kr.Symbol, "kr"), expr.NewSym(b.Symbol, "B")),
	)

	lookup := func(name string) expr.Symbol {
		s, ok := m.Lookup(name)
		if !ok {
			t.Fatalf("symbol %q not found", name)
		}
		return s
	}
	return m, lookup
}

func TestSplitReversibleProducesTwoIrreversibleReactions(t *testing.T) {
	m, _ := buildReversibleMassAction(t)
	out, err := SplitReversible(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Reactions()) != 2 {
		t.Fatalf("got %d reactions, want 2", len(out.Reactions()))
	}
	for _, sym := range out.Reactions() {
		r, _ := out.Reaction(sym)
		if r.Reversible {
			t.Errorf("reaction %q still marked reversible", r.Name)
		}
	}
}

func TestSplitReversibleRejectsNonDecomposableRateLaw(t *testing.T) {
	m := model.New()
	cell, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	k, _ := m.AddParameter("k", true, expr.NewFloat(1))
	a, _ := m.AddSpecies("A", cell.Symbol, false, expr.NewFloat(1))
	b, _ := m.AddSpecies("B", cell.Symbol, false, expr.NewFloat(1))

	r, _ := m.AddReaction("R1", true)
	r.Reactants = []model.StoichTerm{{Species: a.Symbol, Coeff: expr.NewInt(1)}}
	r.Products = []model.StoichTerm{{Species: b.Symbol, Coeff: expr.NewInt(1)}}
	// rate = k*A*B is not of the form f(A) - g(B)
	r.RateLaw = expr.Mul(expr.NewSym(k.Symbol, "k"),
		expr.Mul(expr.NewSym(a.Symbol, "A"), expr.NewSym(b.Symbol, "B")))

	if _, err := SplitReversible(m); err == nil {
		t.Fatal("expected decomposition error")
	}
}

func TestSplitReversibleIsIdempotent(t *testing.T) {
	m, _ := buildReversibleMassAction(t)
	once, err := SplitReversible(m)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := SplitReversible(once)
	if err != nil {
		t.Fatal(err)
	}
	if len(twice.Reactions()) != len(once.Reactions()) {
		t.Errorf("second pass changed reaction count: %d vs %d", len(twice.Reactions()), len(once.Reactions()))
	}
}
