package ssa

import "github.com/spatialmodel/kinetics/expr"

// DepGraph records, for each reaction, which propensities must be
// recomputed after it fires. Reaction μ affects propensity i iff some
// species read by rate law i is changed by μ (a nonzero entry in column
// μ of the stoichiometry matrix); μ always affects itself, since its own
// candidate firing time must be redrawn after it fires regardless of
// whether its inputs changed (a catalytic reaction has zero net change
// on its reactants). The graph is derived statically once and read-only
// during Run.
type DepGraph struct {
	affects [][]int
}

// NewDepGraph builds the dependency graph for props over the given
// stoichiometry (species x reactions) and species index map.
func NewDepGraph(props []expr.Expr, stoich [][]float64, index map[expr.Symbol]int) *DepGraph {
	nReactions := len(props)

	// reads[i] = species indices rate law i depends on.
	reads := make([]map[int]bool, nReactions)
	for i, p := range props {
		reads[i] = make(map[int]bool)
		for sym := range expr.FreeSymbols(p) {
			if k, ok := index[sym]; ok {
				reads[i][k] = true
			}
		}
	}

	g := &DepGraph{affects: make([][]int, nReactions)}
	for mu := 0; mu < nReactions; mu++ {
		seen := map[int]bool{mu: true}
		g.affects[mu] = append(g.affects[mu], mu)
		for i := 0; i < nReactions; i++ {
			if i == mu {
				continue
			}
			for k := range reads[i] {
				if stoich[k][mu] != 0 && !seen[i] {
					seen[i] = true
					g.affects[mu] = append(g.affects[mu], i)
					break
				}
			}
		}
	}
	return g
}

// Affects returns the propensity indices to recompute after reaction mu
// fires, mu itself included.
func (g *DepGraph) Affects(mu int) []int { return g.affects[mu] }
