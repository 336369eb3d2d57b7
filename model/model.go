/*
Copyright © 2024 the kinetics authors.
This file is part of kinetics.

kinetics is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

kinetics is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with kinetics.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package model implements the typed in-memory reaction-network AST:
// compartments, species, parameters, reactions, rules and
// unit definitions, interned in a per-Model arena and referenced by
// Symbol rather than by pointer, which keeps ownership single (the
// arena) and breaks definition/expression reference cycles.
package model

import (
	"fmt"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
)

// Symbol is the same handle type expr uses; model definitions and the
// expressions that reference them share one namespace per Model.
type Symbol = expr.Symbol

// DefKind tags the semantic category of a definition; rewriter passes
// match on it instead of dispatching through a class hierarchy.
type DefKind int

const (
	KindCompartment DefKind = iota
	KindSpecies
	KindParameter
	KindReaction
)

// RuleKind distinguishes assignment rules from rate rules.
type RuleKind int

const (
	RuleAssignment RuleKind = iota
	RuleRate
)

// Rule attaches dynamics to a variable: x := e (assignment) or dx/dt = e
// (rate). At most one rule exists per variable (enforced by Model.AddRule).
type Rule struct {
	Kind   RuleKind
	Target Symbol
	Expr   expr.Expr
}

// UnitDefinition is an identifier paired with a product of scaled base
// units. Dims follows ctessum/unit's Dimensions
// convention (map of base dimension to integer exponent); Multiplier and
// Scale implement "base unit × multiplier × 10^scale".
type UnitDefinition struct {
	Name       string
	Dims       map[unitDim]int
	Multiplier float64
	Scale      int
}

// unitDim avoids importing github.com/ctessum/unit into this file's
// public surface while still matching its Dimension enum values
// one-for-one, so model.UnitDefinition.ToCtessum can convert losslessly;
// see units.go.
type unitDim int

// Compartment is a reaction-network compartment: a 0D/1D/2D/3D container
// with a size (volume, area, length, or a dimensionless count for 0D).
type Compartment struct {
	Symbol     Symbol
	Name       string
	Dimension  int // 0, 1, 2, or 3
	Constant   bool
	InitValue  expr.Expr
	Rule       *Rule
}

// Species is a model species: an identifier tied to an enclosing
// compartment, whose symbol denotes either an amount or a concentration
// depending on Model.SpeciesHasSubstanceUnits.
type Species struct {
	Symbol      Symbol
	Name        string
	Compartment Symbol
	Constant    bool
	InitValue   expr.Expr
	Rule        *Rule
}

// Parameter is a named constant or ruled quantity, at model scope or
// reaction-local (kinetic-law) scope.
type Parameter struct {
	Symbol   Symbol
	Name     string
	Constant bool
	Value    expr.Expr
	Rule     *Rule
}

// StoichTerm is one entry of a reaction's reactant or product multiset:
// a species with a (generally constant) stoichiometric coefficient
// expression.
type StoichTerm struct {
	Species Symbol
	Coeff   expr.Expr
}

// Reaction is a single reaction definition: reactant/product multisets,
// modifiers, reversibility, and a kinetic-law scope holding the rate
// expression and any reaction-local parameters.
type Reaction struct {
	Symbol      Symbol
	Name        string
	Reversible  bool
	Reactants   []StoichTerm
	Products    []StoichTerm
	Modifiers   []Symbol
	RateLaw     expr.Expr
	LocalParams []Symbol // parameters defined in this reaction's scope
}

// Model is the root scope: a container of named, symbol-keyed
// definitions plus the interner that minted their symbols. Definitions
// are created during load (package sbmlio) and otherwise mutated only by
// transform-pipeline passes, which build a new derived Model rather than
// rewriting in place.
type Model struct {
	Interner *expr.Interner

	SpeciesHasSubstanceUnits bool
	SubstanceIsMole          bool // false => substance base unit is "item"

	TimeSymbol Symbol

	names map[string]Symbol // identifier -> symbol, root scope only

	compartments map[Symbol]*Compartment
	species      map[Symbol]*Species
	parameters   map[Symbol]*Parameter
	reactions    map[Symbol]*Reaction
	units        map[string]*UnitDefinition

	order []Symbol // definition order, for deterministic iteration/export
}

// New returns an empty Model with a fresh, model-scoped symbol interner
// and a time symbol already minted.
func New() *Model {
	m := &Model{
		Interner:     expr.NewInterner(),
		names:        make(map[string]Symbol),
		compartments: make(map[Symbol]*Compartment),
		species:      make(map[Symbol]*Species),
		parameters:   make(map[Symbol]*Parameter),
		reactions:    make(map[Symbol]*Reaction),
		units:        make(map[string]*UnitDefinition),
	}
	m.TimeSymbol = m.Interner.New("time")
	return m
}

func (m *Model) register(name string, sym Symbol) error {
	if _, exists := m.names[name]; exists {
		return kinerr.Wrap(kinerr.SemanticError, "identifier %q already defined in model scope", name)
	}
	m.names[name] = sym
	m.order = append(m.order, sym)
	return nil
}

// Has reports whether identifier is defined at model scope.
func (m *Model) Has(identifier string) bool {
	_, ok := m.names[identifier]
	return ok
}

// Lookup resolves identifier to its Symbol. Reaction-local scopes
// (kinetic laws and their local parameters) are resolved by Reaction's
// own LocalParams list, not through this root-scope map; callers walking
// a kinetic law's free symbols should check reaction-local parameters
// first, then fall back to Lookup.
func (m *Model) Lookup(identifier string) (Symbol, bool) {
	s, ok := m.names[identifier]
	return s, ok
}

// AddCompartment interns a new compartment.
func (m *Model) AddCompartment(name string, dim int, constant bool, initValue expr.Expr) (*Compartment, error) {
	sym := m.Interner.New(name)
	if err := m.register(name, sym); err != nil {
		return nil, err
	}
	c := &Compartment{Symbol: sym, Name: name, Dimension: dim, Constant: constant, InitValue: initValue}
	m.compartments[sym] = c
	return c, nil
}

// AddSpecies interns a new species bound to compartment comp.
func (m *Model) AddSpecies(name string, comp Symbol, constant bool, initValue expr.Expr) (*Species, error) {
	if _, ok := m.compartments[comp]; !ok {
		return nil, kinerr.Wrap(kinerr.SemanticError, "species %q references unknown compartment", name)
	}
	sym := m.Interner.New(name)
	if err := m.register(name, sym); err != nil {
		return nil, err
	}
	s := &Species{Symbol: sym, Name: name, Compartment: comp, Constant: constant, InitValue: initValue}
	m.species[sym] = s
	return s, nil
}

// AddParameter interns a new model-scope parameter.
func (m *Model) AddParameter(name string, constant bool, value expr.Expr) (*Parameter, error) {
	sym := m.Interner.New(name)
	if err := m.register(name, sym); err != nil {
		return nil, err
	}
	p := &Parameter{Symbol: sym, Name: name, Constant: constant, Value: value}
	m.parameters[sym] = p
	return p, nil
}

// AddReaction interns a new reaction. The returned Reaction's fields
// (Reactants, Products, Modifiers, RateLaw, LocalParams) are filled in by
// the caller before the reaction is used by any transform pass.
func (m *Model) AddReaction(name string, reversible bool) (*Reaction, error) {
	sym := m.Interner.New(name)
	if err := m.register(name, sym); err != nil {
		return nil, err
	}
	r := &Reaction{Symbol: sym, Name: name, Reversible: reversible}
	m.reactions[sym] = r
	return r, nil
}

// AddLocalParameter interns a reaction-local parameter in r's kinetic-law
// scope. Its name need not be unique at model scope, only within r.
func (m *Model) AddLocalParameter(r *Reaction, name string, value expr.Expr) (*Parameter, error) {
	for _, existing := range r.LocalParams {
		if m.parameters[existing].Name == name {
			return nil, kinerr.Wrap(kinerr.SemanticError, "local parameter %q already defined in reaction %q", name, r.Name)
		}
	}
	sym := m.Interner.New(name)
	p := &Parameter{Symbol: sym, Name: name, Constant: true, Value: value}
	m.parameters[sym] = p
	r.LocalParams = append(r.LocalParams, sym)
	return p, nil
}

// AddRule attaches a rule to target, which must not already have one.
func (m *Model) AddRule(target Symbol, kind RuleKind, e expr.Expr) error {
	existing := m.ruleHolder(target)
	if existing == nil {
		return kinerr.Wrap(kinerr.InternalError, "AddRule: symbol %d is not a compartment, species, or parameter", target)
	}
	if *existing != nil {
		return kinerr.Wrap(kinerr.SemanticError, "symbol %d already has a rule", target)
	}
	*existing = &Rule{Kind: kind, Target: target, Expr: e}
	return nil
}

// ruleHolder returns a pointer to the Rule field of whichever definition
// owns target, so AddRule can set it uniformly across the three
// rule-bearing definition kinds.
func (m *Model) ruleHolder(target Symbol) **Rule {
	if c, ok := m.compartments[target]; ok {
		return &c.Rule
	}
	if s, ok := m.species[target]; ok {
		return &s.Rule
	}
	if p, ok := m.parameters[target]; ok {
		return &p.Rule
	}
	return nil
}

// Compartment, SpeciesDef, Param, Reactions accessors.
func (m *Model) Compartment(s Symbol) (*Compartment, bool) { c, ok := m.compartments[s]; return c, ok }
func (m *Model) SpeciesDef(s Symbol) (*Species, bool)      { sp, ok := m.species[s]; return sp, ok }
func (m *Model) Param(s Symbol) (*Parameter, bool)          { p, ok := m.parameters[s]; return p, ok }
func (m *Model) Reaction(s Symbol) (*Reaction, bool)        { r, ok := m.reactions[s]; return r, ok }

// Species returns all species symbols in definition order.
func (m *Model) Species() []Symbol {
	out := make([]Symbol, 0, len(m.species))
	for _, s := range m.order {
		if _, ok := m.species[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Compartments returns all compartment symbols in definition order.
func (m *Model) Compartments() []Symbol {
	out := make([]Symbol, 0, len(m.compartments))
	for _, s := range m.order {
		if _, ok := m.compartments[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Parameters returns all model-scope parameter symbols in definition
// order (local/kinetic-law parameters are excluded; access them via
// Reaction.LocalParams).
func (m *Model) Parameters() []Symbol {
	out := make([]Symbol, 0, len(m.parameters))
	for _, s := range m.order {
		if _, ok := m.parameters[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Reactions returns all reaction symbols in definition order.
func (m *Model) Reactions() []Symbol {
	out := make([]Symbol, 0, len(m.reactions))
	for _, s := range m.order {
		if _, ok := m.reactions[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Name returns the printable name of sym.
func (m *Model) Name(sym Symbol) string { return m.Interner.Name(sym) }

func (m *Model) String() string {
	return fmt.Sprintf("Model{species=%d, reactions=%d, parameters=%d, compartments=%d}",
		len(m.species), len(m.reactions), len(m.parameters), len(m.compartments))
}
