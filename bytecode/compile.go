package bytecode

import (
	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
)

// OptLevel selects how aggressively Compile rewrites the instruction
// stream.
type OptLevel int

const (
	// OptLevel0 emits instructions directly from the post-order
	// traversal with no rewriting beyond hash-consing.
	OptLevel0 OptLevel = iota
	// OptLevel1 additionally constant-folds arithmetic subtrees,
	// simplifies identity/zero cases, and strength-reduces small
	// integer powers into repeated multiplies.
	OptLevel1
)

// Program is a compiled, immutable instruction stream. Many Interpreters
// may evaluate the same Program concurrently; Program itself is never
// mutated after Compile returns.
type Program struct {
	Instrs     []Instr
	Consts     []float64
	NumTemps   int
	NumInputs  int
	NumOutputs int
	MatRows    int
	MatCols    int
	MaxStack   int
}

// Compiler turns Expression-IR trees into a Program. A Compiler value
// builds one Program per Compile/CompileMatrix call; it holds no state
// between calls and is not meant to be reused concurrently.
type Compiler struct {
	opt   OptLevel
	index map[expr.Symbol]int

	instrs   []Instr
	consts   []float64
	constIdx map[float64]int
	temps    map[string]int // structural key -> temp slot, for subexpression reuse
	numTemps int
	curStack int
	maxStack int
}

// NewCompiler returns a Compiler resolving symbols through index (symbol
// identity -> input-vector position).
func NewCompiler(index map[expr.Symbol]int, opt OptLevel) *Compiler {
	return &Compiler{opt: opt, index: index}
}

// Compile compiles exprs into a vector-output Program: running it leaves
// exprs[i]'s value stored at output index i.
func (c *Compiler) Compile(exprs []expr.Expr) (*Program, error) {
	c.reset()
	counts := useCounts(exprs)
	for i, e := range exprs {
		if err := c.emit(e, counts); err != nil {
			return nil, err
		}
		c.push(OpStoreOutput, int32(i), 0)
	}
	return c.build(len(exprs), 0, 0), nil
}

// CompileMatrix compiles a rows x cols matrix of expressions (e.g. a
// Jacobian) into a Program using OpStoreOutputMat; entries are emitted
// row-major.
func (c *Compiler) CompileMatrix(exprs [][]expr.Expr, rows, cols int) (*Program, error) {
	c.reset()
	flat := make([]expr.Expr, 0, rows*cols)
	for _, row := range exprs {
		flat = append(flat, row...)
	}
	counts := useCounts(flat)
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			if err := c.emit(exprs[r][col], counts); err != nil {
				return nil, err
			}
			c.push(OpStoreOutputMat, int32(r), int32(col))
		}
	}
	return c.build(0, rows, cols), nil
}

func (c *Compiler) reset() {
	c.instrs = nil
	c.consts = nil
	c.constIdx = make(map[float64]int)
	c.temps = make(map[string]int)
	c.numTemps = 0
	c.curStack = 0
	c.maxStack = 0
}

func (c *Compiler) build(numOutputs, matRows, matCols int) *Program {
	return &Program{
		Instrs:     c.instrs,
		Consts:     c.consts,
		NumTemps:   c.numTemps,
		NumInputs:  len(c.index),
		NumOutputs: numOutputs,
		MatRows:    matRows,
		MatCols:    matCols,
		MaxStack:   c.maxStack,
	}
}

// useCounts counts how many times each distinct subexpression (keyed by
// its structural string, see expr.Expr.String) appears across exprs, so
// emit can decide whether a node is worth hoisting into a temp slot.
// String() is not a canonical form across commutative reorderings, so
// this under-counts some structurally-equal-but-differently-ordered
// subexpressions; that only costs a missed reuse, never correctness.
func useCounts(exprs []expr.Expr) map[string]int {
	counts := make(map[string]int)
	var walk func(e expr.Expr)
	walk = func(e expr.Expr) {
		if e == nil {
			return
		}
		counts[e.String()]++
		switch v := e.(type) {
		case expr.Sum:
			for _, t := range v.Terms {
				walk(t)
			}
		case expr.Product:
			for _, f := range v.Factors {
				walk(f)
			}
		case expr.Pow:
			walk(v.Base)
		case expr.PowExpr:
			walk(v.Base)
			walk(v.Exp)
		case expr.Call:
			walk(v.Arg)
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return counts
}

func (c *Compiler) push(op OpCode, a, b int32) {
	c.instrs = append(c.instrs, Instr{Op: op, A: a, B: b})
	switch op {
	case OpLoadConst, OpLoadInput, OpLoadTemp:
		c.curStack++
	case OpAdd, OpSub, OpMul, OpDiv, OpStoreOutput, OpStoreOutputMat:
		c.curStack--
	}
	if c.curStack > c.maxStack {
		c.maxStack = c.curStack
	}
}

func (c *Compiler) constSlot(v float64) int32 {
	if i, ok := c.constIdx[v]; ok {
		return int32(i)
	}
	i := len(c.consts)
	c.consts = append(c.consts, v)
	c.constIdx[v] = i
	return int32(i)
}

// allocTemp reserves a fresh temp slot outside the hash-consing table,
// for compiler-internal uses like strength-reduced integer powers.
func (c *Compiler) allocTemp() int {
	slot := c.numTemps
	c.numTemps++
	return slot
}

// emit performs the post-order traversal, hash-consing repeated
// subexpressions (per counts) into a temp slot computed once.
func (c *Compiler) emit(e expr.Expr, counts map[string]int) error {
	if c.opt >= OptLevel1 {
		if folded, ok := tryFold(e); ok {
			c.push(OpLoadConst, c.constSlot(folded), 0)
			return nil
		}
	}
	key := e.String()
	if slot, ok := c.temps[key]; ok {
		c.push(OpLoadTemp, int32(slot), 0)
		return nil
	}
	shared := counts[key] > 1 && nontrivial(e)

	if err := c.emitRaw(e, counts); err != nil {
		return err
	}
	if shared {
		slot := c.allocTemp()
		c.temps[key] = slot
		c.push(OpStoreTemp, int32(slot), 0)
	}
	return nil
}

func nontrivial(e expr.Expr) bool {
	switch e.(type) {
	case expr.Const, expr.Sym:
		return false
	default:
		return true
	}
}

func (c *Compiler) emitRaw(e expr.Expr, counts map[string]int) error {
	switch v := e.(type) {
	case expr.Const:
		c.push(OpLoadConst, c.constSlot(v.Value()), 0)
		return nil
	case expr.Sym:
		idx, ok := c.index[v.Symbol]
		if !ok {
			return kinerr.Wrap(kinerr.CompileError, "unresolved symbol %q", v.String())
		}
		c.push(OpLoadInput, int32(idx), 0)
		return nil
	case expr.Sum:
		if len(v.Terms) == 0 {
			c.push(OpLoadConst, c.constSlot(0), 0)
			return nil
		}
		if err := c.emit(v.Terms[0], counts); err != nil {
			return err
		}
		for _, t := range v.Terms[1:] {
			if err := c.emit(t, counts); err != nil {
				return err
			}
			c.push(OpAdd, 0, 0)
		}
		return nil
	case expr.Product:
		return c.emitProduct(v, counts)
	case expr.Pow:
		if c.opt >= OptLevel1 && v.Exp == 0 {
			c.push(OpLoadConst, c.constSlot(1), 0)
			return nil
		}
		if err := c.emit(v.Base, counts); err != nil {
			return err
		}
		if c.opt >= OptLevel1 && v.Exp >= 1 && v.Exp <= 4 {
			c.emitStrengthReducedIPow(v.Exp)
			return nil
		}
		c.push(OpIPow, int32(v.Exp), 0)
		return nil
	case expr.PowExpr:
		// An exponent that is an integer constant (how Div represents
		// b^-1) lowers to the integer-power op, which is well defined
		// for negative bases where exp(b*log(a)) is not.
		if ec, ok := v.Exp.(expr.Const); ok && ec.IsRat && ec.Rat.IsInt() && ec.Rat.Num().IsInt64() {
			if err := c.emit(v.Base, counts); err != nil {
				return err
			}
			c.push(OpIPow, int32(ec.Rat.Num().Int64()), 0)
			return nil
		}
		// general a^b == exp(b*log(a))
		if err := c.emit(v.Base, counts); err != nil {
			return err
		}
		c.push(OpLog, 0, 0)
		if err := c.emit(v.Exp, counts); err != nil {
			return err
		}
		c.push(OpMul, 0, 0)
		c.push(OpExp, 0, 0)
		return nil
	case expr.Call:
		if err := c.emit(v.Arg, counts); err != nil {
			return err
		}
		switch v.Fn {
		case expr.FnExp:
			c.push(OpExp, 0, 0)
		case expr.FnLog:
			c.push(OpLog, 0, 0)
		case expr.FnAbs:
			c.push(OpAbs, 0, 0)
		default:
			return kinerr.Wrap(kinerr.CompileError, "unsupported function %q", v.Fn.String())
		}
		return nil
	default:
		return kinerr.Wrap(kinerr.CompileError, "unsupported expression node %T", e)
	}
}

func (c *Compiler) emitProduct(p expr.Product, counts map[string]int) error {
	coeff := p.Coeff.Value()
	if len(p.Factors) == 0 {
		c.push(OpLoadConst, c.constSlot(coeff), 0)
		return nil
	}
	start := 0
	if coeff == 1 {
		if err := c.emit(p.Factors[0], counts); err != nil {
			return err
		}
		start = 1
	} else {
		c.push(OpLoadConst, c.constSlot(coeff), 0)
	}
	for i := start; i < len(p.Factors); i++ {
		if err := c.emit(p.Factors[i], counts); err != nil {
			return err
		}
		c.push(OpMul, 0, 0)
	}
	return nil
}

// emitStrengthReducedIPow rewrites x^n, n in [1,4], as n-1 multiplies
// against a temp holding x, avoiding the generic OpIPow loop for the
// common small-exponent case (OptLevel1 only). x is already on the stack
// on entry and is left consumed; the result is on the stack on exit.
func (c *Compiler) emitStrengthReducedIPow(n int) {
	if n == 1 {
		return
	}
	slot := c.allocTemp()
	c.push(OpStoreTemp, int32(slot), 0) // Temps[slot] = x; x remains on stack
	for i := 1; i < n; i++ {
		c.push(OpLoadTemp, int32(slot), 0)
		c.push(OpMul, 0, 0)
	}
}

// tryFold evaluates e if it has no free symbols, for OptLevel1's constant
// folding pass.
func tryFold(e expr.Expr) (float64, bool) {
	if len(expr.FreeSymbols(e)) != 0 {
		return 0, false
	}
	v, err := expr.Eval(e, nil)
	if err != nil {
		return 0, false
	}
	return v, true
}
