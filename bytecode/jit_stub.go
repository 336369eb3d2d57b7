//go:build !jit

package bytecode

import "github.com/spatialmodel/kinetics/kinerr"

// JITProgram would emit native code via an external JIT toolchain behind
// the same Evaluator contract as Interpreter, letting ssa and ode swap
// engines with no call-site change. No JIT backend is
// vendored in this build; NewJIT always fails so callers fall back to the
// interpreter rather than silently getting interpreter semantics under a
// JIT name. Build with -tags jit against a real backend to get one.
type JITProgram struct{}

// NewJIT reports that no JIT backend is configured in this build.
func NewJIT(p *Program) (*JITProgram, error) {
	return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "JIT backend not built in this binary; build with -tags jit")
}

func (j *JITProgram) Eval(in, out []float64) error {
	return kinerr.Wrap(kinerr.InternalError, "JITProgram.Eval called on an unconfigured stub")
}
