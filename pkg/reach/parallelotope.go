package reach

import (
	"fmt"
)

// Parallelotope is an n-dimensional parallelepiped. It is kept in both of
// its interchangeable forms: the template form (a non-singular matrix of
// outward facet normals with per-row lower and upper offsets) and the
// generator form (base vertex q, unit generator directions U and lengths l),
// with the set being {q + sum_i alpha_i*l_i*U_i | alpha_i in [0,1]}.
//
// The generator form is derived at construction: the base vertex solves
// Lambda*q = -lower, and generator i spans the i-th column of the inverse
// template scaled by the offset span of row i.
type Parallelotope struct {
	template [][]float64
	lower    []float64
	upper    []float64

	baseVertex []float64
	versors    [][]float64
	lengths    []float64
}

// NewParallelotope builds a parallelotope from its template matrix and the
// per-row offsets: row i bounds template[i].x <= upper[i] and
// -template[i].x <= lower[i]. It fails with ErrSingular when the template
// is not full rank and with ErrInvalidInput on size mismatches.
func NewParallelotope(template [][]float64, lower, upper []float64) (*Parallelotope, error) {
	n := len(template)
	if n == 0 {
		return nil, fmt.Errorf("Parallelotope: template must be non-empty: %w", ErrInvalidInput)
	}
	if len(template[0]) != n {
		return nil, fmt.Errorf("Parallelotope: template must be square, got %dx%d: %w", n, len(template[0]), ErrInvalidInput)
	}
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("Parallelotope: template has %d rows but %d lower and %d upper offsets: %w", n, len(lower), len(upper), ErrInvalidInput)
	}

	base, err := solveLinear(template, negVector(lower))
	if err != nil {
		return nil, fmt.Errorf("Parallelotope: base vertex: %w", err)
	}

	versors := make([][]float64, n)
	lengths := make([]float64, n)
	unit := make([]float64, n)
	for j := 0; j < n; j++ {
		unit[j] = 1
		column, err := solveLinear(template, unit)
		if err != nil {
			return nil, fmt.Errorf("Parallelotope: generator %d: %w", j, err)
		}
		unit[j] = 0

		span := upper[j] + lower[j]
		generator := scaleVector(span, column)
		lengths[j] = norm2(generator)
		if lengths[j] != 0 {
			versors[j] = scaleVector(1/lengths[j], generator)
		} else {
			// degenerate row: keep the unit direction of the column so
			// the versor matrix stays well-formed
			if colNorm := norm2(column); colNorm != 0 {
				versors[j] = scaleVector(1/colNorm, column)
			} else {
				versors[j] = make([]float64, n)
			}
		}
	}

	return &Parallelotope{
		template:   template,
		lower:      append([]float64(nil), lower...),
		upper:      append([]float64(nil), upper...),
		baseVertex: base,
		versors:    versors,
		lengths:    lengths,
	}, nil
}

// Dim returns the ambient dimension.
func (p *Parallelotope) Dim() int { return len(p.template) }

// BaseVertex returns the base vertex q. Read-only.
func (p *Parallelotope) BaseVertex() []float64 { return p.baseVertex }

// Versors returns the unit generator directions, one row per generator.
// Read-only.
func (p *Parallelotope) Versors() [][]float64 { return p.versors }

// Lengths returns the generator lengths. Read-only.
func (p *Parallelotope) Lengths() []float64 { return p.lengths }

// ToPolytope returns the H-representation of the parallelotope,
// A = [Lambda; -Lambda], b = [upper; lower].
func (p *Parallelotope) ToPolytope() *Polytope {
	n := p.Dim()
	a := make([][]float64, 0, 2*n)
	b := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		a = append(a, append([]float64(nil), p.template[i]...))
		b = append(b, p.upper[i])
	}
	for i := 0; i < n; i++ {
		a = append(a, negVector(p.template[i]))
		b = append(b, p.lower[i])
	}
	return &Polytope{a: a, b: b}
}
