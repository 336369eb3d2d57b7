package model

import "github.com/ctessum/unit"

// defaultUnitDim maps the model's base dimensions (substance,
// volume, area, length, time) onto ctessum/unit's Dimension enum, reusing
// its LengthDim/TimeDim directly and expressing volume and area as
// LengthDim to the third and second power; only substance gets a
// package-local custom dimension via unit.NewDimension.
var (
	substanceDim = unit.NewDimension("substance")
)

// NewUnitDefinition builds a UnitDefinition from a product of
// (dimension, exponent) pairs plus a multiplier and a power-of-ten scale,
// i.e. base-unit^exponents * multiplier * 10^scale.
func NewUnitDefinition(name string, multiplier float64, scale int, dims map[unit.Dimension]int) *UnitDefinition {
	d := make(map[unitDim]int, len(dims))
	for dim, exp := range dims {
		d[unitDim(dim)] = exp
	}
	return &UnitDefinition{Name: name, Dims: d, Multiplier: multiplier, Scale: scale}
}

// ToCtessum converts u into a github.com/ctessum/unit.Unit carrying
// value 1 in u's dimensions, for interoperability with code that expects
// that package's representation (e.g. a future plotting or reporting
// layer outside this spec's scope).
func (u *UnitDefinition) ToCtessum() *unit.Unit {
	dims := make(unit.Dimensions, len(u.Dims))
	for dim, exp := range u.Dims {
		dims[unit.Dimension(dim)] = exp
	}
	return unit.New(u.Multiplier*pow10(u.Scale), dims)
}

func pow10(scale int) float64 {
	v := 1.0
	if scale >= 0 {
		for i := 0; i < scale; i++ {
			v *= 10
		}
		return v
	}
	for i := 0; i > scale; i-- {
		v /= 10
	}
	return v
}

// DefaultUnits returns the model's five default units (substance,
// volume, area, length, time), each with multiplier 1 and
// scale 0 (moles, cubic meters, square meters, meters, seconds).
func DefaultUnits() map[string]*UnitDefinition {
	return map[string]*UnitDefinition{
		"substance": NewUnitDefinition("substance", 1, 0, map[unit.Dimension]int{unit.Dimension(substanceDim): 1}),
		"volume":    NewUnitDefinition("volume", 1, 0, map[unit.Dimension]int{unit.LengthDim: 3}),
		"area":      NewUnitDefinition("area", 1, 0, map[unit.Dimension]int{unit.LengthDim: 2}),
		"length":    NewUnitDefinition("length", 1, 0, map[unit.Dimension]int{unit.LengthDim: 1}),
		"time":      NewUnitDefinition("time", 1, 0, map[unit.Dimension]int{unit.TimeDim: 1}),
	}
}

// NewUnitDefinitionEmpty returns a dimensionless unit definition with
// multiplier 1 and scale 0, to be filled by Accumulate.
func NewUnitDefinitionEmpty(name string) *UnitDefinition {
	return &UnitDefinition{Name: name, Dims: make(map[unitDim]int), Multiplier: 1}
}

// Accumulate folds (base unit × mult × 10^scale)^exp into u, the
// product form the exchange format stores unit definitions in.
func (u *UnitDefinition) Accumulate(base *UnitDefinition, mult float64, scale, exp int) {
	if base == nil {
		return
	}
	for dim, e := range base.Dims {
		u.Dims[dim] += e * exp
	}
	f := mult * base.Multiplier
	acc := 1.0
	n := exp
	if n < 0 {
		n = -n
		f = 1 / f
	}
	for i := 0; i < n; i++ {
		acc *= f
	}
	u.Multiplier *= acc
	u.Scale += (scale + base.Scale) * exp
}

// AddUnit registers a unit definition at model scope under name.
func (m *Model) AddUnit(u *UnitDefinition) { m.units[u.Name] = u }

// Unit looks up a unit definition by name.
func (m *Model) Unit(name string) (*UnitDefinition, bool) { u, ok := m.units[name]; return u, ok }

// AvogadroNumber is the conversion constant transform.Normalize applies
// when the model's substance base unit is mole.
const AvogadroNumber = 6.02214076e23
