package scan

import (
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/bytecode"
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
	"github.com/spatialmodel/kinetics/model"
	"github.com/spatialmodel/kinetics/ode"
	"github.com/spatialmodel/kinetics/sse"
	"github.com/spatialmodel/kinetics/transform"
)

// Prepared is a model pushed through the full analytical pipeline
// (reversible splitting, constant folding with the scan symbols held
// out, extensive-unit normalization, conservation reduction, SSE
// derivation, bytecode compilation), ready to be evaluated for any
// assignment of the held-out symbols.
//
// The compiled programs take the SSE state vector followed by a fixed
// tail of extra inputs: the held-out scan symbols, then the compartment
// sizes, then the conservation constants. SetParams fills the scan
// portion of that tail; the rest is baked from the model.
type Prepared struct {
	Update   *sse.Update
	Data     *transform.ConservationData
	Names    []string  // independent-species names, RE-block order
	DepNames []string  // dependent-species names, conservation-law order
	X0       []float64 // independent-species initial amounts, the Newton guess

	scanSyms []expr.Symbol
	inputs   []float64 // full input buffer: state ++ extras
	nState   int

	vec *bytecode.Interpreter
	jac *bytecode.Interpreter
}

// Prepare runs the symbolic pipeline on m once. scanSyms are kept
// symbolic through constant folding and become settable inputs of the
// compiled programs; pass nil for a plain single-model analysis.
//
// The symbolic machinery is not reentrant: Prepare clones both the
// model and its interner, so concurrent Prepare calls on the same
// source model (one per scan worker) cannot race.
func Prepare(m *model.Model, scanSyms []expr.Symbol, level sse.Level, opt bytecode.OptLevel) (*Prepared, error) {
	local := m.Clone()
	local.Interner = m.Interner.Clone()

	exclude := make(map[expr.Symbol]bool, len(scanSyms))
	for _, s := range scanSyms {
		exclude[s] = true
	}

	pipe := transform.Pipeline{transform.SplitReversible, transform.FoldConstants(exclude)}
	if !local.SpeciesHasSubstanceUnits {
		pipe = append(pipe, transform.Normalize(transform.Extensive))
	}
	pipe = append(pipe, transform.AssertReasonableModel)
	folded, err := pipe.Run(local)
	if err != nil {
		return nil, err
	}
	// The full stoichiometry must be taken before the conservation pass
	// removes the dependent species from the model.
	S, fullSpecies, err := transform.StoichiometryMatrix(folded)
	if err != nil {
		return nil, err
	}
	red, data, err := transform.AnalyzeConservationData(folded)
	if err != nil {
		return nil, err
	}
	if data.NInd == 0 {
		return nil, kinerr.Wrap(kinerr.SemanticError, "scan: model has no independent species")
	}

	props := make([]expr.Expr, 0, len(red.Reactions()))
	for _, rsym := range red.Reactions() {
		r, _ := red.Reaction(rsym)
		props = append(props, r.RateLaw)
	}
	stoich, err := reducedStoichiometry(S, fullSpecies, data)
	if err != nil {
		return nil, err
	}

	omega := make([]expr.Symbol, data.NInd)
	for i, sym := range data.Independent {
		sp, _ := red.SpeciesDef(sym)
		omega[i] = sp.Compartment
	}
	eps := red.Interner.New("eps")

	upd, err := sse.Derive(sse.DeriveOptions{
		Mean:         data.Independent,
		Propensities: props,
		Stoich:       stoich,
		Omega:        omega,
		Epsilon:      eps,
		Interner:     red.Interner,
		Name:         func(s expr.Symbol) string { return red.Name(s) },
		Level:        level,
	})
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Update:   upd,
		Data:     data,
		scanSyms: scanSyms,
		nState:   upd.Sizes.Total,
	}
	p.DepNames = make([]string, len(data.Dependent))
	for d, sym := range data.Dependent {
		p.DepNames[d] = red.Name(sym)
	}
	p.Names = make([]string, data.NInd)
	p.X0 = make([]float64, data.NInd)
	for i, sym := range data.Independent {
		p.Names[i] = red.Name(sym)
		sp, _ := red.SpeciesDef(sym)
		v, err := red.EvaluateInitialValue(sp.InitValue)
		if err != nil {
			return nil, err
		}
		p.X0[i] = v
	}

	// Input layout: SSE state, scan symbols, compartments, conservation
	// constants. The non-scan extras are constants of the model and are
	// filled here once.
	index := make(map[expr.Symbol]int, p.nState)
	for i, s := range upd.State.AllSymbols() {
		index[s] = i
	}
	next := p.nState
	addInput := func(sym expr.Symbol, v float64) {
		if _, dup := index[sym]; dup {
			return
		}
		index[sym] = next
		p.inputs = append(p.inputs, v)
		next++
	}
	p.inputs = make([]float64, 0, len(scanSyms)+len(red.Compartments())+len(data.Constants))
	for _, s := range scanSyms {
		addInput(s, 0)
	}
	for _, csym := range red.Compartments() {
		c, _ := red.Compartment(csym)
		v, err := red.EvaluateInitialValue(c.InitValue)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, kinerr.Wrap(kinerr.SemanticError, "scan: compartment %q has zero volume", red.Name(csym))
		}
		addInput(csym, v)
	}
	for d, csym := range data.Constants {
		addInput(csym, data.ConstantValues[d])
	}

	full := make([]float64, p.nState+len(p.inputs))
	copy(full[p.nState:], p.inputs)
	p.inputs = full

	vecProg, err := bytecode.NewCompiler(index, opt).Compile(upd.Vector)
	if err != nil {
		return nil, err
	}
	jacProg, err := bytecode.NewCompiler(index, opt).CompileMatrix(upd.Jacobian, p.nState, p.nState)
	if err != nil {
		return nil, err
	}
	p.vec = vecProg.NewInterpreter()
	p.jac = jacProg.NewInterpreter()
	return p, nil
}

// SetParams writes values for the held-out scan symbols into the input
// tail. Symbols in set that were not declared to Prepare are an
// InternalError.
func (p *Prepared) SetParams(set map[expr.Symbol]float64) error {
	if len(set) != len(p.scanSyms) {
		return kinerr.Wrap(kinerr.InternalError, "scan: parameter set has %d entries, want %d", len(set), len(p.scanSyms))
	}
	for i, sym := range p.scanSyms {
		v, ok := set[sym]
		if !ok {
			return kinerr.Wrap(kinerr.InternalError, "scan: parameter set is missing scan symbol %d", sym)
		}
		p.inputs[p.nState+i] = v
	}
	return nil
}

// Func returns the compiled update vector and Jacobian behind the ODE
// right-hand-side contract, with the current parameter tail baked in.
// The returned SSEFunc shares the Prepared's buffers and is therefore
// single-threaded, like the interpreter it wraps.
func (p *Prepared) Func() *ode.SSEFunc {
	return ode.New(&paddedVec{p: p}, &paddedJac{p: p}, p.nState)
}

// paddedVec and paddedJac splice the caller's SSE state into the full
// input buffer ahead of the fixed extras tail.
type paddedVec struct{ p *Prepared }

func (e *paddedVec) Eval(in, out []float64) error {
	copy(e.p.inputs[:e.p.nState], in)
	return e.p.vec.Eval(e.p.inputs, out)
}

type paddedJac struct{ p *Prepared }

func (e *paddedJac) EvalMat(in []float64, out *mat.Dense) error {
	copy(e.p.inputs[:e.p.nState], in)
	return e.p.jac.EvalMat(e.p.inputs, out)
}

// DependentValues reconstructs the dependent-species amounts from the
// independent block of an SSE state, via the conservation relation
// dep_d = c_d + Σ_k L0[d,k]·ind_k.
func (p *Prepared) DependentValues(state []float64) []float64 {
	nDep := len(p.Data.Dependent)
	out := make([]float64, nDep)
	for d := 0; d < nDep; d++ {
		v := p.Data.ConstantValues[d]
		for k := 0; k < p.Data.NInd; k++ {
			v += p.Data.L0.At(d, k) * state[k]
		}
		out[d] = v
	}
	return out
}

// reducedStoichiometry returns the independent-species rows of the full
// stoichiometry matrix as plain float64 rows for sse.Derive.
func reducedStoichiometry(S *mat.Dense, species []expr.Symbol, data *transform.ConservationData) ([][]float64, error) {
	row := make(map[expr.Symbol]int, len(species))
	for i, s := range species {
		row[s] = i
	}
	_, nR := S.Dims()
	out := make([][]float64, data.NInd)
	for i, sym := range data.Independent {
		r, ok := row[sym]
		if !ok {
			return nil, kinerr.Wrap(kinerr.InternalError, "scan: independent species %d missing from stoichiometry", sym)
		}
		out[i] = make([]float64, nR)
		for j := 0; j < nR; j++ {
			out[i][j] = S.At(r, j)
		}
	}
	return out, nil
}
