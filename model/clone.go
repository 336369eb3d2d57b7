package model

// Clone returns a shallow-independent copy of m: a new Model with copies
// of every definition (expression trees are immutable and are shared,
// not deep-copied). Transform passes that produce a derived model
// call Clone and then mutate the copy, leaving
// the original untouched.
func (m *Model) Clone() *Model {
	out := &Model{
		Interner:                 m.Interner,
		SpeciesHasSubstanceUnits: m.SpeciesHasSubstanceUnits,
		SubstanceIsMole:          m.SubstanceIsMole,
		TimeSymbol:               m.TimeSymbol,
		names:                    make(map[string]Symbol, len(m.names)),
		compartments:             make(map[Symbol]*Compartment, len(m.compartments)),
		species:                  make(map[Symbol]*Species, len(m.species)),
		parameters:               make(map[Symbol]*Parameter, len(m.parameters)),
		reactions:                make(map[Symbol]*Reaction, len(m.reactions)),
		units:                    make(map[string]*UnitDefinition, len(m.units)),
		order:                    append([]Symbol(nil), m.order...),
	}
	for k, v := range m.names {
		out.names[k] = v
	}
	for k, v := range m.compartments {
		c := *v
		out.compartments[k] = &c
	}
	for k, v := range m.species {
		s := *v
		out.species[k] = &s
	}
	for k, v := range m.parameters {
		p := *v
		out.parameters[k] = &p
	}
	for k, v := range m.reactions {
		r := *v
		r.Reactants = append([]StoichTerm(nil), v.Reactants...)
		r.Products = append([]StoichTerm(nil), v.Products...)
		r.Modifiers = append([]Symbol(nil), v.Modifiers...)
		r.LocalParams = append([]Symbol(nil), v.LocalParams...)
		out.reactions[k] = &r
	}
	for k, v := range m.units {
		u := *v
		out.units[k] = &u
	}
	return out
}
