package bytecode

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/kinetics/kinerr"
)

// Evaluator is the shared contract a Program-backed Interpreter and a
// build-tag-gated JIT implementation both satisfy, so simulators and
// adapters swap engines without call-site changes.
type Evaluator interface {
	Eval(in, out []float64) error
}

// MatEvaluator is the matrix-output counterpart, used for compiled
// Jacobians.
type MatEvaluator interface {
	EvalMat(in []float64, out *mat.Dense) error
}

// Interpreter is a reentrant, single-threaded evaluator bound to one
// Program. It holds no per-call allocations: the operand stack and temp
// slots are embedded buffers sized once from the Program's measured
// requirements, so the hot loop never allocates.
// Many Interpreters may share one Program concurrently; an individual
// Interpreter must not be used from more than one goroutine at a time.
type Interpreter struct {
	prog  *Program
	stack []float64
	temps []float64
}

// NewInterpreter returns an Interpreter bound to prog.
func (p *Program) NewInterpreter() *Interpreter {
	return &Interpreter{
		prog:  p,
		stack: make([]float64, p.MaxStack),
		temps: make([]float64, p.NumTemps),
	}
}

// Eval runs the program against in, writing OpStoreOutput targets into
// out. out must have length >= p.NumOutputs.
func (it *Interpreter) Eval(in, out []float64) error {
	return it.run(in, out, nil)
}

// EvalMat runs the program against in, writing OpStoreOutputMat targets
// into out. out must be at least p.MatRows x p.MatCols.
func (it *Interpreter) EvalMat(in []float64, out *mat.Dense) error {
	return it.run(in, nil, out)
}

func (it *Interpreter) run(in, out []float64, outMat *mat.Dense) error {
	sp := 0
	stack := it.stack
	prog := it.prog
	for _, instr := range prog.Instrs {
		switch instr.Op {
		case OpLoadConst:
			stack[sp] = prog.Consts[instr.A]
			sp++
		case OpLoadInput:
			stack[sp] = in[instr.A]
			sp++
		case OpLoadTemp:
			stack[sp] = it.temps[instr.A]
			sp++
		case OpStoreTemp:
			it.temps[instr.A] = stack[sp-1]
		case OpAdd:
			stack[sp-2] = stack[sp-2] + stack[sp-1]
			sp--
		case OpSub:
			stack[sp-2] = stack[sp-2] - stack[sp-1]
			sp--
		case OpMul:
			stack[sp-2] = stack[sp-2] * stack[sp-1]
			sp--
		case OpDiv:
			stack[sp-2] = stack[sp-2] / stack[sp-1]
			sp--
		case OpNeg:
			stack[sp-1] = -stack[sp-1]
		case OpExp:
			stack[sp-1] = math.Exp(stack[sp-1])
		case OpLog:
			stack[sp-1] = math.Log(stack[sp-1])
		case OpAbs:
			stack[sp-1] = math.Abs(stack[sp-1])
		case OpIPow:
			stack[sp-1] = intPow(stack[sp-1], int(instr.A))
		case OpStoreOutput:
			sp--
			v := stack[sp]
			if !finite(v) {
				return kinerr.Wrap(kinerr.NumericError, "output %d is not finite: %v", instr.A, v)
			}
			out[instr.A] = v
		case OpStoreOutputMat:
			sp--
			v := stack[sp]
			if !finite(v) {
				return kinerr.Wrap(kinerr.NumericError, "output (%d,%d) is not finite: %v", instr.A, instr.B, v)
			}
			outMat.Set(int(instr.A), int(instr.B), v)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func intPow(base float64, n int) float64 {
	if n < 0 {
		return 1 / intPow(base, -n)
	}
	result := 1.0
	for ; n > 0; n-- {
		result *= base
	}
	return result
}
