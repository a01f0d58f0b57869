package reach

import (
	"fmt"
	"math"
)

// Polytope is a closed convex set in H-representation, {x | A*x <= b}.
// An infeasible system denotes the empty set. The representation is
// mutated only by in-place simplification, intersection and offset
// updates; every other operation returns a new polytope.
type Polytope struct {
	a [][]float64
	b []float64
}

// NewPolytope builds the polytope {x | A*x <= b}. Validation matches
// NewLinearSystem.
func NewPolytope(a [][]float64, b []float64) (*Polytope, error) {
	ls, err := NewLinearSystem(a, b)
	if err != nil {
		return nil, err
	}
	return &Polytope{a: ls.a, b: ls.b}, nil
}

// NewBox builds the axis-aligned box with the given per-dimension lower
// and upper bounds.
func NewBox(lower, upper []float64) (*Polytope, error) {
	if len(lower) != len(upper) {
		return nil, fmt.Errorf("NewBox: %d lower bounds but %d upper bounds: %w", len(lower), len(upper), ErrInvalidInput)
	}
	n := len(lower)
	a := make([][]float64, 0, 2*n)
	b := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		row[i] = 1
		a = append(a, row)
		b = append(b, upper[i])
	}
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		row[i] = -1
		a = append(a, row)
		b = append(b, -lower[i])
	}
	return &Polytope{a: a, b: b}, nil
}

// Clone returns a deep copy.
func (p *Polytope) Clone() *Polytope {
	a := make([][]float64, len(p.a))
	for i, row := range p.a {
		a[i] = append([]float64(nil), row...)
	}
	return &Polytope{a: a, b: append([]float64(nil), p.b...)}
}

// Dim returns the ambient dimension.
func (p *Polytope) Dim() int { return len(p.a[0]) }

// Rows returns the number of half-space constraints.
func (p *Polytope) Rows() int { return len(p.a) }

func (p *Polytope) system() *LinearSystem { return &LinearSystem{a: p.a, b: p.b} }

// IntersectWith stacks the constraints of other onto p in place. The two
// polytopes must share the ambient dimension.
func (p *Polytope) IntersectWith(other *Polytope) error {
	if p.Dim() != other.Dim() {
		return fmt.Errorf("Polytope.IntersectWith: dimension %d vs %d: %w", p.Dim(), other.Dim(), ErrInvalidInput)
	}
	for i, row := range other.a {
		p.a = append(p.a, append([]float64(nil), row...))
		p.b = append(p.b, other.b[i])
	}
	return nil
}

// AddConstraint appends the half-space dir.x <= off in place.
func (p *Polytope) AddConstraint(dir []float64, off float64) error {
	if len(dir) != p.Dim() {
		return fmt.Errorf("Polytope.AddConstraint: direction has %d entries, want %d: %w", len(dir), p.Dim(), ErrInvalidInput)
	}
	p.a = append(p.a, append([]float64(nil), dir...))
	p.b = append(p.b, off)
	return nil
}

// IsEmpty reports whether the constraint system is infeasible.
func (p *Polytope) IsEmpty() bool {
	return !p.system().HasSolutions(false)
}

// Maximize returns the maximum of obj.x over the polytope.
func (p *Polytope) Maximize(obj []float64) OptimizationResult {
	return p.system().Maximize(obj)
}

// Minimize returns the minimum of obj.x over the polytope.
func (p *Polytope) Minimize(obj []float64) OptimizationResult {
	return p.system().Minimize(obj)
}

// Contains reports whether x satisfies every constraint up to tol.
func (p *Polytope) Contains(x []float64, tol float64) bool {
	for i, row := range p.a {
		if dot(row, x) > p.b[i]+tol {
			return false
		}
	}
	return true
}

// ContainsPolytope reports whether every point of other lies in p, up to
// tol, decided by maximising each constraint of p over other.
func (p *Polytope) ContainsPolytope(other *Polytope, tol float64) bool {
	for i, row := range p.a {
		res := other.system().Maximize(row)
		switch res.Status() {
		case Infeasible:
			return true // the empty set is contained everywhere
		case OptimumAvailable:
			if res.ObjectiveValue() > p.b[i]+tol {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Simplify merges duplicate constraint normals in place, keeping the
// tightest offset per normal, and drops rows implied by the remaining
// constraints. Idempotent.
func (p *Polytope) Simplify() {
	simplified := p.system().Simplified()
	p.a = simplified.a
	p.b = simplified.b
}

// MaximizeExpression maximises a linear expression over the polytope with
// the polytope coordinates given by syms. It fails with ErrUnsupported on
// non-linear expressions.
func (p *Polytope) MaximizeExpression(syms []Symbol, e Expression) (OptimizationResult, error) {
	obj, constant, err := e.LinearCoefficients(syms)
	if err != nil {
		return OptimizationResult{}, err
	}
	res := p.Maximize(obj)
	if res.Status() == OptimumAvailable {
		res.objective += constant
	}
	return res, nil
}

// boundingInterval returns the [lower, upper] range of axis i over the
// polytope; either end is infinite when the polytope is unbounded along it.
func (p *Polytope) boundingInterval(axis int) (float64, float64) {
	obj := make([]float64, p.Dim())
	obj[axis] = 1
	lower, upper := math.Inf(-1), math.Inf(1)
	if res := p.Maximize(obj); res.Status() == OptimumAvailable {
		upper = res.ObjectiveValue()
	}
	if res := p.Minimize(obj); res.Status() == OptimumAvailable {
		lower = res.ObjectiveValue()
	}
	return lower, upper
}

// Split covers the polytope with at most numSplits+1 pieces, recursively
// bisecting along the longest bounded axis. Each axis is bisected at most
// once per piece chain; the union of the result equals the polytope.
func (p *Polytope) Split(numSplits uint) []*Polytope {
	canSplit := make([]bool, p.Dim())
	for i := range canSplit {
		canSplit[i] = true
	}
	return splitAlongAxes(p.Clone(), canSplit, int(numSplits)+1)
}

func splitAlongAxes(p *Polytope, canSplit []bool, want int) []*Polytope {
	if want <= 1 {
		return []*Polytope{p}
	}
	best, bestWidth := -1, 0.0
	var bestLower, bestUpper float64
	for axis, ok := range canSplit {
		if !ok {
			continue
		}
		lower, upper := p.boundingInterval(axis)
		if math.IsInf(lower, 0) || math.IsInf(upper, 0) {
			continue
		}
		if width := upper - lower; width > bestWidth {
			best, bestWidth = axis, width
			bestLower, bestUpper = lower, upper
		}
	}
	if best < 0 {
		return []*Polytope{p}
	}
	mid := (bestLower + bestUpper) / 2
	row := make([]float64, p.Dim())
	row[best] = 1
	lowerHalf := p.Clone()
	lowerHalf.a = append(lowerHalf.a, row)
	lowerHalf.b = append(lowerHalf.b, mid)
	upperHalf := p.Clone()
	upperHalf.a = append(upperHalf.a, negVector(row))
	upperHalf.b = append(upperHalf.b, -mid)

	remaining := append([]bool(nil), canSplit...)
	remaining[best] = false
	out := splitAlongAxes(lowerHalf, remaining, (want+1)/2)
	return append(out, splitAlongAxes(upperHalf, append([]bool(nil), remaining...), want/2)...)
}
