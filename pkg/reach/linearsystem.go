package reach

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize/convex/lp"
)

// OptimizationStatus classifies the outcome of a linear program.
type OptimizationStatus int

const (
	// OptimumAvailable means a finite optimum and a witness vertex exist.
	OptimumAvailable OptimizationStatus = iota
	// Unbounded means the objective grows without bound over the system.
	Unbounded
	// Infeasible means the system has no solution at all.
	Infeasible
	// StatusOther covers solver failures that are neither unboundedness
	// nor infeasibility, e.g. numerical breakdown.
	StatusOther
)

// String returns a human-readable representation of the status.
func (s OptimizationStatus) String() string {
	switch s {
	case OptimumAvailable:
		return "OPTIMUM_AVAILABLE"
	case Unbounded:
		return "UNBOUNDED"
	case Infeasible:
		return "INFEASIBLE"
	default:
		return "OTHER"
	}
}

// OptimizationResult carries the status of a linear program and, when the
// optimum is available, the objective value and a vertex attaining it.
type OptimizationResult struct {
	status    OptimizationStatus
	objective float64
	point     []float64
}

// Status returns the solver outcome.
func (r OptimizationResult) Status() OptimizationStatus { return r.status }

// ObjectiveValue returns the optimal objective value. For Unbounded
// maximisations it is +Inf, for Unbounded minimisations -Inf, and for
// Infeasible systems it is meaningless.
func (r OptimizationResult) ObjectiveValue() float64 { return r.objective }

// OptimumPoint returns a vertex attaining the optimum, or nil when the
// status is not OptimumAvailable.
func (r OptimizationResult) OptimumPoint() []float64 { return r.point }

// LinearSystem is a finite system of linear inequalities A*x <= b over
// float64, together with a simplex-backed optimisation client.
//
// Thread safety: immutable after construction; all methods are safe for
// concurrent use.
type LinearSystem struct {
	a [][]float64
	b []float64
}

// NewLinearSystem builds the system A*x <= b. It fails with
// ErrInvalidInput when A is empty, the rows of A have uneven lengths, or
// the row count differs from len(b).
func NewLinearSystem(a [][]float64, b []float64) (*LinearSystem, error) {
	if len(a) == 0 {
		return nil, fmt.Errorf("LinearSystem: constraint matrix must be non-empty: %w", ErrInvalidInput)
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("LinearSystem: %d constraint rows but %d offsets: %w", len(a), len(b), ErrInvalidInput)
	}
	n := len(a[0])
	rows := make([][]float64, len(a))
	for i, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("LinearSystem: row %d has %d columns, want %d: %w", i, len(row), n, ErrInvalidInput)
		}
		rows[i] = append([]float64(nil), row...)
	}
	return &LinearSystem{a: rows, b: append([]float64(nil), b...)}, nil
}

// Rows returns the number of constraints.
func (ls *LinearSystem) Rows() int { return len(ls.a) }

// Dim returns the number of variables.
func (ls *LinearSystem) Dim() int { return len(ls.a[0]) }

// Row returns the i-th constraint normal. The slice is shared; callers
// must not modify it.
func (ls *LinearSystem) Row(i int) []float64 { return ls.a[i] }

// Offset returns the i-th constraint offset.
func (ls *LinearSystem) Offset(i int) float64 { return ls.b[i] }

// Optimize optimises obj over the system: the maximum of obj.x when
// maximise is true, the minimum otherwise.
func (ls *LinearSystem) Optimize(obj []float64, maximise bool) OptimizationResult {
	c := append([]float64(nil), obj...)
	if maximise {
		c = negVector(c)
	}
	cNew, aNew, bNew := lp.Convert(c, denseFromRows(ls.a), ls.b, nil, nil)
	opt, x, err := lp.Simplex(cNew, aNew, bNew, 1e-10, nil)
	switch {
	case err == nil:
		n := ls.Dim()
		point := make([]float64, n)
		for i := 0; i < n; i++ {
			point[i] = x[i] - x[n+i]
		}
		if maximise {
			opt = -opt
		}
		return OptimizationResult{status: OptimumAvailable, objective: opt, point: point}
	case errors.Is(err, lp.ErrInfeasible):
		return OptimizationResult{status: Infeasible}
	case errors.Is(err, lp.ErrUnbounded):
		inf := math.Inf(1)
		if !maximise {
			inf = math.Inf(-1)
		}
		return OptimizationResult{status: Unbounded, objective: inf}
	default:
		return OptimizationResult{status: StatusOther}
	}
}

// Maximize returns the maximum of obj.x over the system.
func (ls *LinearSystem) Maximize(obj []float64) OptimizationResult {
	return ls.Optimize(obj, true)
}

// Minimize returns the minimum of obj.x over the system.
func (ls *LinearSystem) Minimize(obj []float64) OptimizationResult {
	return ls.Optimize(obj, false)
}

// HasSolutions reports whether the system is feasible. With strict set,
// it tests for a non-empty interior by tightening every offset by a small
// margin before the feasibility run.
func (ls *LinearSystem) HasSolutions(strict bool) bool {
	sys := ls
	if strict {
		tightened := make([]float64, len(ls.b))
		for i, v := range ls.b {
			tightened[i] = v - strictTolerance*(1+math.Abs(v))
		}
		sys = &LinearSystem{a: ls.a, b: tightened}
	}
	zero := make([]float64, ls.Dim())
	return sys.Maximize(zero).Status() == OptimumAvailable
}

// strictTolerance is the interior margin used by HasSolutions(true).
const strictTolerance = 1e-9

// redundancyTolerance absorbs simplex rounding when deciding whether a
// constraint is implied by the rest of the system.
const redundancyTolerance = 1e-9

// Simplified returns an equivalent system without redundant rows.
// Duplicate constraint normals are merged first, keeping the tightest
// offset per normal; then every row implied by the remaining constraints
// is dropped: a row is redundant when maximising its normal over the
// system without it cannot exceed its own offset. Idempotent.
func (ls *LinearSystem) Simplified() *LinearSystem {
	var rows [][]float64
	var offs []float64
	for i, row := range ls.a {
		merged := false
		for j, kept := range rows {
			if equalVectors(row, kept) {
				if ls.b[i] < offs[j] {
					offs[j] = ls.b[i]
				}
				merged = true
				break
			}
		}
		if !merged {
			rows = append(rows, row)
			offs = append(offs, ls.b[i])
		}
	}

	for i := 0; i < len(rows) && len(rows) > 1; {
		rest := &LinearSystem{
			a: append(append([][]float64(nil), rows[:i]...), rows[i+1:]...),
			b: append(append([]float64(nil), offs[:i]...), offs[i+1:]...),
		}
		res := rest.Maximize(rows[i])
		if res.Status() == OptimumAvailable && res.ObjectiveValue() <= offs[i]+redundancyTolerance {
			rows = rest.a
			offs = rest.b
			continue
		}
		// the support grows (or becomes unbounded) without this row:
		// it is a real facet and must stay
		i++
	}
	return &LinearSystem{a: rows, b: offs}
}
