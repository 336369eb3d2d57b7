package model

import (
	"testing"

	"github.com/spatialmodel/kinetics/expr"
)

func TestEvaluateInitialValue(t *testing.T) {
	m := New()
	comp, err := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	if err != nil {
		t.Fatal(err)
	}
	// species X has initial value 2*k, where k is a parameter = 5.
	k, err := m.AddParameter("k", true, expr.NewFloat(5))
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.AddSpecies("X", comp.Symbol, false, expr.Mul(expr.NewInt(2), expr.NewSym(k.Symbol, "k")))
	if err != nil {
		t.Fatal(err)
	}
	x, _ := m.Lookup("X")
	sp, _ := m.SpeciesDef(x)

	v, err := m.EvaluateInitialValue(sp.InitValue)
	if err != nil {
		t.Fatal(err)
	}
	if v != 10 {
		t.Errorf("got %v, want 10", v)
	}
}

func TestDuplicateIdentifierRejected(t *testing.T) {
	m := New()
	if _, err := m.AddParameter("k", true, expr.NewFloat(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddParameter("k", true, expr.NewFloat(2)); err == nil {
		t.Fatal("expected duplicate-identifier error")
	}
}

func TestCheckResolvableRejectsFreeSymbol(t *testing.T) {
	m := New()
	comp, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	_, _ = comp, m
	ghost := m.Interner.New("ghost")
	err := m.CheckResolvable(expr.NewSym(ghost, "ghost"), nil)
	if err == nil {
		t.Fatal("expected unresolved-symbol error")
	}
}

func TestVisitOrder(t *testing.T) {
	m := New()
	comp, _ := m.AddCompartment("cell", 3, true, expr.NewFloat(1))
	m.AddSpecies("A", comp.Symbol, false, expr.NewFloat(0))
	m.AddSpecies("B", comp.Symbol, false, expr.NewFloat(0))

	var names []string
	m.Visit(Visitor{Species: func(s *Species) { names = append(names, s.Name) }})
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("got %v, want [A B]", names)
	}
}
