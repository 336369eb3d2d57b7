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

// Package sbmlio reads and writes reaction networks in the XML-based
// model-exchange format. Only the fragment the transform pipeline
// supports is round-tripped; anything outside it is rejected at import
// with a diagnostic naming the offending construct. The round trip is
// semantic, not byte-for-byte: a re-imported model has identical
// dynamics, not identical markup.
package sbmlio

import (
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
)

type xmlDoc struct {
	XMLName xml.Name `xml:"sbml"`
	Level   int      `xml:"level,attr"`
	Version int      `xml:"version,attr"`
	Model   xmlModel `xml:"model"`
}

type xmlModel struct {
	ID             string `xml:"id,attr"`
	SubstanceUnits string `xml:"substanceUnits,attr"`

	UnitDefs     []xmlUnitDef     `xml:"listOfUnitDefinitions>unitDefinition"`
	Compartments []xmlCompartment `xml:"listOfCompartments>compartment"`
	Species      []xmlSpecies     `xml:"listOfSpecies>species"`
	Parameters   []xmlParameter   `xml:"listOfParameters>parameter"`
	AssignRules  []xmlRule        `xml:"listOfRules>assignmentRule"`
	RateRules    []xmlRule        `xml:"listOfRules>rateRule"`
	Reactions    []xmlReaction    `xml:"listOfReactions>reaction"`

	// Constructs outside the supported fragment; their mere presence is
	// an import error.
	Events    []struct{} `xml:"listOfEvents>event"`
	FuncDefs  []struct{} `xml:"listOfFunctionDefinitions>functionDefinition"`
	Constrnts []struct{} `xml:"listOfConstraints>constraint"`
}

type xmlUnitDef struct {
	ID    string    `xml:"id,attr"`
	Units []xmlUnit `xml:"listOfUnits>unit"`
}

type xmlUnit struct {
	Kind       string  `xml:"kind,attr"`
	Exponent   int     `xml:"exponent,attr"`
	Scale      int     `xml:"scale,attr"`
	Multiplier float64 `xml:"multiplier,attr"`
}

type xmlCompartment struct {
	ID                string  `xml:"id,attr"`
	SpatialDimensions *int    `xml:"spatialDimensions,attr"`
	Size              float64 `xml:"size,attr"`
	Constant          *bool   `xml:"constant,attr"`
}

type xmlSpecies struct {
	ID                   string   `xml:"id,attr"`
	Compartment          string   `xml:"compartment,attr"`
	InitialAmount        *float64 `xml:"initialAmount,attr"`
	InitialConcentration *float64 `xml:"initialConcentration,attr"`
	HasOnlySubstance     bool     `xml:"hasOnlySubstanceUnits,attr"`
	Constant             bool     `xml:"constant,attr"`
}

type xmlParameter struct {
	ID       string   `xml:"id,attr"`
	Value    *float64 `xml:"value,attr"`
	Constant *bool    `xml:"constant,attr"`
}

type xmlRule struct {
	Variable string `xml:"variable,attr"`
	Formula  string `xml:"formula,attr"`
}

type xmlReaction struct {
	ID         string        `xml:"id,attr"`
	Reversible bool          `xml:"reversible,attr"`
	Reactants  []xmlSpecRef  `xml:"listOfReactants>speciesReference"`
	Products   []xmlSpecRef  `xml:"listOfProducts>speciesReference"`
	Modifiers  []xmlModifier `xml:"listOfModifiers>modifierSpeciesReference"`
	KineticLaw *xmlKinetic   `xml:"kineticLaw"`
}

type xmlSpecRef struct {
	Species       string `xml:"species,attr"`
	Stoichiometry string `xml:"stoichiometry,attr"`
}

type xmlModifier struct {
	Species string `xml:"species,attr"`
}

type xmlKinetic struct {
	Formula    string         `xml:"formula,attr"`
	Parameters []xmlParameter `xml:"listOfParameters>parameter"`
}

// Read imports a model from the exchange format. Constructs outside the
// supported fragment (events, function definitions, constraints, mixed
// amount/concentration species) are rejected with an UnsupportedFeature
// error naming the construct.
func Read(r io.Reader) (*model.Model, error) {
	var doc xmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, kinerr.Wrap(kinerr.SemanticError, "exchange format: %v", err)
	}
	xm := doc.Model

	if len(xm.Events) > 0 {
		return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "model %q uses events", xm.ID)
	}
	if len(xm.FuncDefs) > 0 {
		return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "model %q uses function definitions", xm.ID)
	}
	if len(xm.Constrnts) > 0 {
		return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "model %q uses constraints", xm.ID)
	}

	m := model.New()
	m.SubstanceIsMole = xm.SubstanceUnits != "item" // mole is the format's default

	for _, ud := range xm.UnitDefs {
		u, err := convertUnitDef(ud)
		if err != nil {
			return nil, err
		}
		m.AddUnit(u)
	}

	for _, c := range xm.Compartments {
		dim := 3
		if c.SpatialDimensions != nil {
			dim = *c.SpatialDimensions
		}
		constant := true
		if c.Constant != nil {
			constant = *c.Constant
		}
		if _, err := m.AddCompartment(c.ID, dim, constant, expr.NewFloat(c.Size)); err != nil {
			return nil, err
		}
	}

	// The species mode is model-wide: every species must agree on
	// whether its symbol denotes an amount or a concentration.
	amounts, concentrations := 0, 0
	for _, sp := range xm.Species {
		if sp.InitialConcentration != nil && !sp.HasOnlySubstance {
			concentrations++
		} else {
			amounts++
		}
	}
	if amounts > 0 && concentrations > 0 {
		return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "model %q mixes amount and concentration species", xm.ID)
	}
	m.SpeciesHasSubstanceUnits = concentrations == 0

	for _, sp := range xm.Species {
		comp, ok := m.Lookup(sp.Compartment)
		if !ok {
			return nil, kinerr.Wrap(kinerr.SemanticError, "species %q references unknown compartment %q", sp.ID, sp.Compartment)
		}
		init := 0.0
		if sp.InitialAmount != nil {
			init = *sp.InitialAmount
		} else if sp.InitialConcentration != nil {
			init = *sp.InitialConcentration
		}
		if _, err := m.AddSpecies(sp.ID, comp, sp.Constant, expr.NewFloat(init)); err != nil {
			return nil, err
		}
	}

	for _, pa := range xm.Parameters {
		if err := addParameter(m, pa); err != nil {
			return nil, err
		}
	}

	modelResolver := func(name string) (expr.Expr, bool) {
		if name == "time" || name == "t" {
			return expr.NewSym(m.TimeSymbol, "time"), true
		}
		sym, ok := m.Lookup(name)
		if !ok {
			return nil, false
		}
		return expr.NewSym(sym, name), true
	}

	for _, rule := range xm.AssignRules {
		if err := addRule(m, rule, model.RuleAssignment, modelResolver); err != nil {
			return nil, err
		}
	}
	for _, rule := range xm.RateRules {
		if err := addRule(m, rule, model.RuleRate, modelResolver); err != nil {
			return nil, err
		}
	}

	for _, xr := range xm.Reactions {
		if err := addReaction(m, xr, modelResolver); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func addParameter(m *model.Model, pa xmlParameter) error {
	constant := true
	if pa.Constant != nil {
		constant = *pa.Constant
	}
	var value expr.Expr
	if pa.Value != nil {
		value = expr.NewFloat(*pa.Value)
	}
	_, err := m.AddParameter(pa.ID, constant, value)
	return err
}

func addRule(m *model.Model, rule xmlRule, kind model.RuleKind, resolve Resolver) error {
	target, ok := m.Lookup(rule.Variable)
	if !ok {
		return kinerr.Wrap(kinerr.SemanticError, "rule targets unknown variable %q", rule.Variable)
	}
	e, err := ParseFormula(rule.Formula, resolve)
	if err != nil {
		return err
	}
	return m.AddRule(target, kind, e)
}

func addReaction(m *model.Model, xr xmlReaction, modelResolver Resolver) error {
	r, err := m.AddReaction(xr.ID, xr.Reversible)
	if err != nil {
		return err
	}
	terms := func(refs []xmlSpecRef) ([]model.StoichTerm, error) {
		out := make([]model.StoichTerm, 0, len(refs))
		for _, ref := range refs {
			sym, ok := m.Lookup(ref.Species)
			if !ok {
				return nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q references unknown species %q", xr.ID, ref.Species)
			}
			coeff, err := parseStoichiometry(ref.Stoichiometry)
			if err != nil {
				return nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q, species %q: %v", xr.ID, ref.Species, err)
			}
			out = append(out, model.StoichTerm{Species: sym, Coeff: coeff})
		}
		return out, nil
	}
	if r.Reactants, err = terms(xr.Reactants); err != nil {
		return err
	}
	if r.Products, err = terms(xr.Products); err != nil {
		return err
	}
	for _, mod := range xr.Modifiers {
		sym, ok := m.Lookup(mod.Species)
		if !ok {
			return kinerr.Wrap(kinerr.SemanticError, "reaction %q references unknown modifier %q", xr.ID, mod.Species)
		}
		r.Modifiers = append(r.Modifiers, sym)
	}

	if xr.KineticLaw == nil || xr.KineticLaw.Formula == "" {
		return kinerr.Wrap(kinerr.UnsupportedFeature, "reaction %q has no kinetic law formula", xr.ID)
	}
	locals := make(map[string]expr.Symbol, len(xr.KineticLaw.Parameters))
	for _, pa := range xr.KineticLaw.Parameters {
		var value expr.Expr
		if pa.Value != nil {
			value = expr.NewFloat(*pa.Value)
		}
		p, err := m.AddLocalParameter(r, pa.ID, value)
		if err != nil {
			return err
		}
		locals[pa.ID] = p.Symbol
	}
	resolve := func(name string) (expr.Expr, bool) {
		if sym, ok := locals[name]; ok {
			return expr.NewSym(sym, name), true
		}
		return modelResolver(name)
	}
	r.RateLaw, err = ParseFormula(xr.KineticLaw.Formula, resolve)
	return err
}

// parseStoichiometry keeps coefficients exact rationals so the
// constant-stoichiometry assertion never compares floats.
func parseStoichiometry(s string) (expr.Expr, error) {
	if s == "" {
		return expr.NewInt(1), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("bad stoichiometry %q", s)
	}
	return expr.Const{IsRat: true, Rat: r}, nil
}

var unitKindDims = map[string]string{
	"mole":   "substance",
	"item":   "substance",
	"litre":  "volume",
	"liter":  "volume",
	"metre":  "length",
	"meter":  "length",
	"second": "time",
}

// convertUnitDef folds a product of scaled base units into the model's
// single multiplier × 10^scale × dims representation.
func convertUnitDef(ud xmlUnitDef) (*model.UnitDefinition, error) {
	base := model.DefaultUnits()
	out := model.NewUnitDefinitionEmpty(ud.ID)
	for _, u := range ud.Units {
		kind, ok := unitKindDims[u.Kind]
		if !ok {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "unit definition %q uses unsupported base unit %q", ud.ID, u.Kind)
		}
		exp := u.Exponent
		if exp == 0 {
			exp = 1
		}
		mult := u.Multiplier
		if mult == 0 {
			mult = 1
		}
		out.Accumulate(base[kind], mult, u.Scale, exp)
	}
	return out, nil
}

// Write exports m in the exchange format. Initial values are evaluated
// to numbers; rate laws print in the infix form ParseFormula accepts.
func Write(w io.Writer, m *model.Model) error {
	doc := xmlDoc{Level: 2, Version: 4}
	doc.Model.ID = "model"
	if !m.SubstanceIsMole {
		doc.Model.SubstanceUnits = "item"
	}

	names := func(sym expr.Symbol) string { return m.Name(sym) }

	for _, csym := range m.Compartments() {
		c, _ := m.Compartment(csym)
		size, err := m.EvaluateInitialValue(c.InitValue)
		if err != nil {
			return kinerr.Wrap(kinerr.SemanticError, "compartment %q: %v", c.Name, err)
		}
		dim := c.Dimension
		constant := c.Constant
		doc.Model.Compartments = append(doc.Model.Compartments, xmlCompartment{
			ID: c.Name, SpatialDimensions: &dim, Size: size, Constant: &constant,
		})
	}

	for _, ssym := range m.Species() {
		sp, _ := m.SpeciesDef(ssym)
		init, err := m.EvaluateInitialValue(sp.InitValue)
		if err != nil {
			return kinerr.Wrap(kinerr.SemanticError, "species %q: %v", sp.Name, err)
		}
		xs := xmlSpecies{ID: sp.Name, Compartment: m.Name(sp.Compartment), Constant: sp.Constant}
		if m.SpeciesHasSubstanceUnits {
			xs.InitialAmount = &init
			xs.HasOnlySubstance = true
		} else {
			xs.InitialConcentration = &init
		}
		doc.Model.Species = append(doc.Model.Species, xs)
	}

	for _, psym := range m.Parameters() {
		p, _ := m.Param(psym)
		xp := xmlParameter{ID: p.Name, Constant: &p.Constant}
		if p.Value != nil {
			v, err := m.EvaluateInitialValue(p.Value)
			if err != nil {
				return kinerr.Wrap(kinerr.SemanticError, "parameter %q: %v", p.Name, err)
			}
			xp.Value = &v
		}
		doc.Model.Parameters = append(doc.Model.Parameters, xp)

		rule := p.Rule
		if rule != nil {
			doc.Model.appendRule(rule, p.Name, names)
		}
	}
	for _, csym := range m.Compartments() {
		c, _ := m.Compartment(csym)
		if c.Rule != nil {
			doc.Model.appendRule(c.Rule, c.Name, names)
		}
	}
	for _, ssym := range m.Species() {
		sp, _ := m.SpeciesDef(ssym)
		if sp.Rule != nil {
			doc.Model.appendRule(sp.Rule, sp.Name, names)
		}
	}

	for _, rsym := range m.Reactions() {
		r, _ := m.Reaction(rsym)
		xr := xmlReaction{ID: r.Name, Reversible: r.Reversible}
		refs := func(terms []model.StoichTerm) ([]xmlSpecRef, error) {
			out := make([]xmlSpecRef, 0, len(terms))
			for _, t := range terms {
				c, ok := t.Coeff.(expr.Const)
				if !ok {
					return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "reaction %q has a non-constant stoichiometry coefficient", r.Name)
				}
				out = append(out, xmlSpecRef{Species: m.Name(t.Species), Stoichiometry: stoichString(c)})
			}
			return out, nil
		}
		var err error
		if xr.Reactants, err = refs(r.Reactants); err != nil {
			return err
		}
		if xr.Products, err = refs(r.Products); err != nil {
			return err
		}
		for _, mod := range r.Modifiers {
			xr.Modifiers = append(xr.Modifiers, xmlModifier{Species: m.Name(mod)})
		}
		kin := &xmlKinetic{Formula: expr.SprintNamed(r.RateLaw, names)}
		for _, lp := range r.LocalParams {
			p, _ := m.Param(lp)
			xp := xmlParameter{ID: p.Name}
			if p.Value != nil {
				v, err := m.EvaluateInitialValue(p.Value)
				if err != nil {
					return kinerr.Wrap(kinerr.SemanticError, "local parameter %q: %v", p.Name, err)
				}
				xp.Value = &v
			}
			kin.Parameters = append(kin.Parameters, xp)
		}
		xr.KineticLaw = kin
		doc.Model.Reactions = append(doc.Model.Reactions, xr)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return kinerr.Wrap(kinerr.SemanticError, "exchange format: %v", err)
	}
	return enc.Flush()
}

func (xm *xmlModel) appendRule(rule *model.Rule, target string, names func(expr.Symbol) string) {
	xr := xmlRule{Variable: target, Formula: expr.SprintNamed(rule.Expr, names)}
	if rule.Kind == model.RuleAssignment {
		xm.AssignRules = append(xm.AssignRules, xr)
	} else {
		xm.RateRules = append(xm.RateRules, xr)
	}
}

func stoichString(c expr.Const) string {
	if c.IsRat {
		return c.Rat.RatString()
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", c.Float), "0"), ".")
}
