package transform

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
)

// AssertNoRateRule rejects a model where any variable carries a rate
// rule (dx/dt = e at model scope, outside the SSE/ODE machinery that
// itself produces such equations downstream).
func AssertNoRateRule(m *model.Model) (*model.Model, error) {
	var err error
	m.Visit(model.Visitor{
		Compartment: func(c *model.Compartment) { err = checkNoRateRule(err, c.Rule, c.Name) },
		Species:     func(s *model.Species) { err = checkNoRateRule(err, s.Rule, s.Name) },
		Parameter:   func(p *model.Parameter) { err = checkNoRateRule(err, p.Rule, p.Name) },
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func checkNoRateRule(prior error, r *model.Rule, name string) error {
	if prior != nil {
		return prior
	}
	if r != nil && r.Kind == model.RuleRate {
		return kinerr.Wrap(kinerr.UnsupportedFeature, "%q has a rate rule, which this pipeline does not support", name)
	}
	return nil
}

// AssertNoAssignmentRule rejects a model where any variable carries an
// assignment rule, unless allowLinear is true, in which case assignment
// rules are permitted only if their right-hand side is linear in every
// free symbol (the linear-assignment variant some callers allow).
func AssertNoAssignmentRule(allowLinear bool) Stage {
	return func(m *model.Model) (*model.Model, error) {
		var err error
		check := func(r *model.Rule, name string) {
			if err != nil || r == nil || r.Kind != model.RuleAssignment {
				return
			}
			if allowLinear && isLinear(r.Expr) {
				return
			}
			err = kinerr.Wrap(kinerr.UnsupportedFeature, "%q has an assignment rule, which this pipeline does not support", name)
		}
		m.Visit(model.Visitor{
			Compartment: func(c *model.Compartment) { check(c.Rule, c.Name) },
			Species:     func(s *model.Species) { check(s.Rule, s.Name) },
			Parameter:   func(p *model.Parameter) { check(p.Rule, p.Name) },
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// isLinear reports whether e is linear in its free symbols: a sum of
// (constant * at most one symbol) terms plus a constant term.
func isLinear(e expr.Expr) bool {
	switch v := e.(type) {
	case expr.Const:
		return true
	case expr.Sym:
		return true
	case expr.Sum:
		for _, t := range v.Terms {
			if !isLinear(t) {
				return false
			}
		}
		return true
	case expr.Product:
		symCount := 0
		for _, f := range v.Factors {
			if !isLinear(f) {
				return false
			}
			if _, ok := f.(expr.Sym); ok {
				symCount++
			}
			if p, ok := f.(expr.Pow); ok {
				if _, ok := p.Base.(expr.Sym); ok && p.Exp != 0 {
					return false
				}
			}
		}
		return symCount <= 1
	default:
		return false
	}
}

// AssertNoConstantSpecies rejects a model where any species is marked
// constant.
func AssertNoConstantSpecies(m *model.Model) (*model.Model, error) {
	for _, sym := range m.Species() {
		s, _ := m.SpeciesDef(sym)
		if s.Constant {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "species %q is declared constant", s.Name)
		}
	}
	return m, nil
}

// AssertIrreversible rejects a model with any reversible reaction still
// present (i.e. it must be run after SplitReversible).
func AssertIrreversible(m *model.Model) (*model.Model, error) {
	for _, sym := range m.Reactions() {
		r, _ := m.Reaction(sym)
		if r.Reversible {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "reaction %q is reversible", r.Name)
		}
	}
	return m, nil
}

// AssertConstantParameters rejects a model containing a non-constant
// parameter, or a constant parameter lacking a value expression.
func AssertConstantParameters(m *model.Model) (*model.Model, error) {
	for _, sym := range m.Parameters() {
		p, _ := m.Param(sym)
		if !p.Constant {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "parameter %q is not constant", p.Name)
		}
		if p.Value == nil {
			return nil, kinerr.Wrap(kinerr.SemanticError, "parameter %q has no value", p.Name)
		}
	}
	return m, nil
}

// AssertConstantCompartments rejects a model containing a non-constant
// compartment.
func AssertConstantCompartments(m *model.Model) (*model.Model, error) {
	for _, sym := range m.Compartments() {
		c, _ := m.Compartment(sym)
		if !c.Constant {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "compartment %q is not constant", c.Name)
		}
	}
	return m, nil
}

// AssertConstantStoichiometry rejects a model where any reaction's
// stoichiometry coefficient expression is not a rational constant.
func AssertConstantStoichiometry(m *model.Model) (*model.Model, error) {
	for _, sym := range m.Reactions() {
		r, _ := m.Reaction(sym)
		for _, t := range append(append([]model.StoichTerm{}, r.Reactants...), r.Products...) {
			if _, ok := t.Coeff.(expr.Const); !ok {
				return nil, kinerr.Wrap(kinerr.SemanticError, "reaction %q has a non-constant stoichiometry coefficient", r.Name)
			}
		}
	}
	return m, nil
}

// AssertNoTimeDependence rejects a model where any kinetic law or rule
// expression depends explicitly on the model's time symbol.
func AssertNoTimeDependence(m *model.Model) (*model.Model, error) {
	check := func(e expr.Expr, name string) error {
		if e == nil {
			return nil
		}
		if expr.FreeSymbols(e)[m.TimeSymbol] {
			return kinerr.Wrap(kinerr.UnsupportedFeature, "%q depends explicitly on the time symbol", name)
		}
		return nil
	}
	for _, sym := range m.Reactions() {
		r, _ := m.Reaction(sym)
		if err := check(r.RateLaw, r.Name); err != nil {
			return nil, err
		}
	}
	var err error
	rule := func(r *model.Rule, name string) {
		if err == nil && r != nil {
			err = check(r.Expr, name)
		}
	}
	m.Visit(model.Visitor{
		Compartment: func(c *model.Compartment) { rule(c.Rule, c.Name) },
		Species:     func(s *model.Species) { rule(s.Rule, s.Name) },
		Parameter:   func(p *model.Parameter) { rule(p.Rule, p.Name) },
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AssertReasonableModel bundles the assertions the downstream engines
// (SSE derivation, compilation, simulation, steady state) require.
func AssertReasonableModel(m *model.Model) (*model.Model, error) {
	pipeline := Pipeline{
		AssertNoRateRule,
		AssertNoAssignmentRule(false),
		AssertNoConstantSpecies,
		AssertIrreversible,
		AssertConstantParameters,
		AssertConstantCompartments,
		AssertConstantStoichiometry,
		AssertNoTimeDependence,
	}
	return pipeline.Run(m)
}
