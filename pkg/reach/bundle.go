package reach

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/gitrdm/goreach/internal/parallel"
)

// TransformMode selects how a bundle image is bounded during a step.
type TransformMode int

const (
	// AFO (all-for-one) bounds every direction of the bundle over every
	// template parallelotope.
	AFO TransformMode = iota
	// OFO (one-for-one) bounds each direction only over the templates
	// that contain it; the result is canonicalised to compensate.
	OFO
)

// String returns a human-readable representation of the mode.
func (m TransformMode) String() string {
	if m == OFO {
		return "OFO"
	}
	return "AFO"
}

// SplitMagnitudeRatio is the default span contraction applied when a
// bundle split is triggered by the magnitude bound.
const SplitMagnitudeRatio = 0.75

// Bundle is an intersection of parallelotopes sharing one direction
// matrix. Row i of the direction matrix carries the half-space pair
// directions[i].x <= offp[i] and -directions[i].x <= offm[i]; each
// template row names the n directions forming one parallelotope.
//
// Invariants: the offset vectors match the direction count; every
// template entry indexes a direction row; every template block has full
// rank. When canonical, offp[i] is exactly max directions[i].x over the
// bundle and offm[i] is max -directions[i].x.
type Bundle struct {
	directions [][]float64
	offp       []float64
	offm       []float64
	templates  [][]int

	// theta caches the pairwise orthogonal proximity of the directions,
	// used by Decompose.
	theta [][]float64

	// assumption half-spaces attached by IntersectWithPolytope whose
	// directions are not rows of the direction matrix; applied whenever
	// the bundle is converted to a polytope
	constraintDirs [][]float64
	constraintOffs []float64
}

// NewBundle builds a bundle from a direction matrix, the offset pair and
// a template set. It fails with ErrInvalidInput when the direction matrix
// is empty, the offsets mismatch, a template row has the wrong length or
// an out-of-range index, or a template block is rank deficient.
func NewBundle(directions [][]float64, offp, offm []float64, templates [][]int) (*Bundle, error) {
	if len(directions) == 0 {
		return nil, fmt.Errorf("Bundle: direction matrix must be non-empty: %w", ErrInvalidInput)
	}
	n := len(directions[0])
	for i, d := range directions {
		if len(d) != n {
			return nil, fmt.Errorf("Bundle: direction %d has %d entries, want %d: %w", i, len(d), n, ErrInvalidInput)
		}
	}
	if len(offp) != len(directions) || len(offm) != len(directions) {
		return nil, fmt.Errorf("Bundle: %d directions but %d upper and %d lower offsets: %w",
			len(directions), len(offp), len(offm), ErrInvalidInput)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("Bundle: template set must be non-empty: %w", ErrInvalidInput)
	}
	for r, row := range templates {
		if len(row) != n {
			return nil, fmt.Errorf("Bundle: template row %d has %d entries, want %d: %w", r, len(row), n, ErrInvalidInput)
		}
		block := make([][]float64, n)
		for j, idx := range row {
			if idx < 0 || idx >= len(directions) {
				return nil, fmt.Errorf("Bundle: template row %d references direction %d, have %d directions: %w",
					r, idx, len(directions), ErrInvalidInput)
			}
			block[j] = directions[idx]
		}
		if isSingular(block) {
			return nil, fmt.Errorf("Bundle: template row %d selects linearly dependent directions: %w", r, ErrInvalidInput)
		}
	}

	b := &Bundle{
		directions: cloneMatrix(directions),
		offp:       append([]float64(nil), offp...),
		offm:       append([]float64(nil), offm...),
		templates:  cloneTemplates(templates),
	}
	b.theta = make([][]float64, b.Size())
	for i := range b.theta {
		b.theta[i] = make([]float64, b.Size())
	}
	for i := 0; i < b.Size(); i++ {
		for j := i + 1; j < b.Size(); j++ {
			prox := orthProx(b.directions[i], b.directions[j])
			b.theta[i][j] = prox
			b.theta[j][i] = prox
		}
	}
	return b, nil
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func cloneTemplates(t [][]int) [][]int {
	out := make([][]int, len(t))
	for i, row := range t {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	out := &Bundle{
		directions:     b.directions, // immutable after construction
		offp:           append([]float64(nil), b.offp...),
		offm:           append([]float64(nil), b.offm...),
		templates:      b.templates,
		theta:          b.theta,
		constraintDirs: cloneMatrix(b.constraintDirs),
		constraintOffs: append([]float64(nil), b.constraintOffs...),
	}
	return out
}

// Dim returns the ambient dimension.
func (b *Bundle) Dim() int { return len(b.directions[0]) }

// Size returns the number of directions.
func (b *Bundle) Size() int { return len(b.directions) }

// NumTemplates returns the number of template rows.
func (b *Bundle) NumTemplates() int { return len(b.templates) }

// Direction returns direction row i. Read-only.
func (b *Bundle) Direction(i int) []float64 { return b.directions[i] }

// Template returns template row r. Read-only.
func (b *Bundle) Template(r int) []int { return b.templates[r] }

// UpperOffset returns offp[i].
func (b *Bundle) UpperOffset(i int) float64 { return b.offp[i] }

// LowerOffset returns offm[i].
func (b *Bundle) LowerOffset(i int) float64 { return b.offm[i] }

// AsPolytope returns the polytope denoted by the bundle: the stacked
// half-space pairs of every direction plus any attached assumption
// constraints.
func (b *Bundle) AsPolytope() *Polytope {
	a := make([][]float64, 0, 2*b.Size()+len(b.constraintDirs))
	off := make([]float64, 0, 2*b.Size()+len(b.constraintDirs))
	for i, d := range b.directions {
		a = append(a, append([]float64(nil), d...))
		off = append(off, b.offp[i])
	}
	for i, d := range b.directions {
		a = append(a, negVector(d))
		off = append(off, b.offm[i])
	}
	for i, d := range b.constraintDirs {
		a = append(a, append([]float64(nil), d...))
		off = append(off, b.constraintOffs[i])
	}
	return &Polytope{a: a, b: off}
}

// IsEmpty reports whether the bundle denotes the empty set.
func (b *Bundle) IsEmpty() bool { return b.AsPolytope().IsEmpty() }

// ParallelotopeAt builds the parallelotope named by template row r.
func (b *Bundle) ParallelotopeAt(r int) (*Parallelotope, error) {
	if r < 0 || r >= len(b.templates) {
		return nil, fmt.Errorf("Bundle.ParallelotopeAt: row %d out of range [0,%d): %w", r, len(b.templates), ErrInvalidInput)
	}
	row := b.templates[r]
	lambda := make([][]float64, len(row))
	lower := make([]float64, len(row))
	upper := make([]float64, len(row))
	for j, idx := range row {
		lambda[j] = b.directions[idx]
		lower[j] = b.offm[idx]
		upper[j] = b.offp[idx]
	}
	return NewParallelotope(lambda, lower, upper)
}

// Canonical returns a bundle with the same directions and templates whose
// offsets are tightened by LP to the exact support values of the bundle.
// The result contains every point of the input and has the smallest
// offsets expressible over its direction matrix.
func (b *Bundle) Canonical() (*Bundle, error) {
	poly := b.AsPolytope()
	offp := make([]float64, b.Size())
	offm := make([]float64, b.Size())
	for i, d := range b.directions {
		res := poly.Maximize(d)
		if res.Status() != OptimumAvailable {
			return nil, canonicalError(i, res.Status())
		}
		offp[i] = res.ObjectiveValue()
		res = poly.Maximize(negVector(d))
		if res.Status() != OptimumAvailable {
			return nil, canonicalError(i, res.Status())
		}
		offm[i] = res.ObjectiveValue()
	}
	out, err := NewBundle(b.directions, offp, offm, b.templates)
	if err != nil {
		return nil, err
	}
	out.constraintDirs = cloneMatrix(b.constraintDirs)
	out.constraintOffs = append([]float64(nil), b.constraintOffs...)
	return out, nil
}

func canonicalError(dir int, status OptimizationStatus) error {
	switch status {
	case Infeasible:
		return fmt.Errorf("Bundle.Canonical: bundle is empty: %w", ErrInfeasible)
	case Unbounded:
		return fmt.Errorf("Bundle.Canonical: direction %d has no finite support: %w", dir, ErrUnbounded)
	default:
		return fmt.Errorf("Bundle.Canonical: solver failure on direction %d: %w", dir, ErrUnbounded)
	}
}

// normalisedSpan returns the width of the bundle along direction i in
// direction-norm units.
func (b *Bundle) normalisedSpan(i int) float64 {
	return (b.offp[i] + b.offm[i]) / norm2(b.directions[i])
}

// OffsetDistances returns the per-direction offset span scaled by the
// direction norm, the distance between the paired half-spaces.
func (b *Bundle) OffsetDistances() []float64 {
	dists := make([]float64, b.Size())
	for i := range dists {
		dists[i] = b.normalisedSpan(i)
	}
	return dists
}

// Split covers the bundle with bundles whose per-direction span does not
// exceed ratio*maxMagnitude in direction-norm units. The direction with
// the largest excess span is bisected first; ties go to the smallest
// index. A non-positive or infinite maxMagnitude yields the bundle
// itself.
func (b *Bundle) Split(maxMagnitude, ratio float64) []*Bundle {
	if maxMagnitude <= 0 || math.IsInf(maxMagnitude, 1) {
		return []*Bundle{b.Clone()}
	}
	threshold := ratio * maxMagnitude

	type piece struct {
		offp, offm []float64
	}
	pending := []piece{{append([]float64(nil), b.offp...), append([]float64(nil), b.offm...)}}
	var out []*Bundle
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		widest, excess := -1, 0.0
		for i := range cur.offp {
			span := (cur.offp[i] + cur.offm[i]) / norm2(b.directions[i])
			if span > threshold && span > excess {
				widest, excess = i, span
			}
		}
		if widest < 0 {
			nb := b.Clone()
			nb.offp = cur.offp
			nb.offm = cur.offm
			out = append(out, nb)
			continue
		}
		mid := (cur.offp[widest] - cur.offm[widest]) / 2
		lower := piece{append([]float64(nil), cur.offp...), append([]float64(nil), cur.offm...)}
		lower.offp[widest] = mid
		upper := piece{append([]float64(nil), cur.offp...), append([]float64(nil), cur.offm...)}
		upper.offm[widest] = -mid
		pending = append(pending, lower, upper)
	}
	return out
}

// Decompose searches for a template set of the same cardinality that
// minimises weight*maxOffsetDist + (1-weight)*maxOrthProx over maxIters
// random single-entry swaps. A swap is rejected when it duplicates a row
// up to permutation or makes the block singular. The RNG is injected so
// seeded runs reproduce.
func (b *Bundle) Decompose(weight float64, maxIters int, rng *rand.Rand) (*Bundle, error) {
	offDists := b.OffsetDistances()

	curT := cloneTemplates(b.templates)
	bestT := cloneTemplates(b.templates)
	bestW := weight*maxOffsetDist(bestT, offDists) + (1-weight)*b.maxOrthProx(bestT)

	for iter := 0; iter < maxIters; iter++ {
		tmpT := cloneTemplates(curT)
		i1 := rng.Intn(len(tmpT))
		j1 := rng.Intn(b.Dim())
		tmpT[i1][j1] = rng.Intn(b.Size())

		if isPermutationOfOtherRows(tmpT, i1) {
			continue
		}
		block := make([][]float64, b.Dim())
		for j, idx := range tmpT[i1] {
			block[j] = b.directions[idx]
		}
		if isSingular(block) {
			// swap would break the full-rank invariant
			continue
		}

		w := weight*maxOffsetDist(tmpT, offDists) + (1-weight)*b.maxOrthProx(tmpT)
		if w < bestW {
			bestT = cloneTemplates(tmpT)
			bestW = w
		}
		curT = tmpT
	}

	out, err := NewBundle(b.directions, b.offp, b.offm, bestT)
	if err != nil {
		return nil, err
	}
	out.constraintDirs = cloneMatrix(b.constraintDirs)
	out.constraintOffs = append([]float64(nil), b.constraintOffs...)
	return out, nil
}

// maxOffsetDist accumulates the per-row product of direction spans and
// returns the largest across template rows.
func maxOffsetDist(templates [][]int, dists []float64) float64 {
	best := math.Inf(-1)
	for _, row := range templates {
		acc := 1.0
		for _, idx := range row {
			acc *= dists[idx]
		}
		if acc > best {
			best = acc
		}
	}
	return best
}

// maxOrthProx returns the largest cached pairwise orthogonal proximity
// within any template row.
func (b *Bundle) maxOrthProx(templates [][]int) float64 {
	best := math.Inf(-1)
	for _, row := range templates {
		rowMax := 0.0
		for i := 0; i < len(row); i++ {
			for j := i + 1; j < len(row); j++ {
				if prox := b.theta[row[i]][row[j]]; prox > rowMax {
					rowMax = prox
				}
			}
		}
		if rowMax > best {
			best = rowMax
		}
	}
	return best
}

// isPermutationOfOtherRows reports whether row i of m equals another row
// up to reordering.
func isPermutationOfOtherRows(m [][]int, i int) bool {
	sorted := append([]int(nil), m[i]...)
	sort.Ints(sorted)
	for j, row := range m {
		if j == i {
			continue
		}
		other := append([]int(nil), row...)
		sort.Ints(other)
		if equalInts(sorted, other) {
			return true
		}
	}
	return false
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IntersectWithPolytope tightens the bundle in place against assumption
// constraints. A constraint whose direction matches a direction row
// tightens the corresponding upper offset; a constraint matching a
// negated row tightens the lower offset; any other constraint is attached
// as an extra half-space applied by AsPolytope. Assumption constraints
// never introduce template rows.
func (b *Bundle) IntersectWithPolytope(assumptions *Polytope) {
	if assumptions == nil {
		return
	}
	for r := 0; r < assumptions.Rows(); r++ {
		dir := assumptions.a[r]
		off := assumptions.b[r]
		matched := false
		for i, d := range b.directions {
			if equalVectors(dir, d) {
				if off < b.offp[i] {
					b.offp[i] = off
				}
				matched = true
				break
			}
			if equalVectors(dir, negVector(d)) {
				if off < b.offm[i] {
					b.offm[i] = off
				}
				matched = true
				break
			}
		}
		if !matched {
			b.constraintDirs = append(b.constraintDirs, append([]float64(nil), dir...))
			b.constraintOffs = append(b.constraintOffs, off)
		}
	}
}

// instantiatedGeneratorFunction builds the symbolic generator function of
// P with the base vertex and lengths already substituted by their
// concrete values, leaving only alpha free:
//
//	g_j(alpha) = q_j + sum_i alpha_i * l_i * U[i][j]
//
// Zero-length generator rows contribute nothing and are skipped.
func instantiatedGeneratorFunction(alpha []Symbol, p *Parallelotope) []Expression {
	n := p.Dim()
	gen := make([]Expression, n)
	base := p.BaseVertex()
	for j := 0; j < n; j++ {
		gen[j] = Constant(base[j])
	}
	versors := p.Versors()
	lengths := p.Lengths()
	for i := 0; i < n; i++ {
		if lengths[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			gen[j] = gen[j].Add(Var(alpha[i]).Scale(lengths[i] * versors[i][j]))
		}
	}
	return gen
}

// Transform computes a one-step image bundle: for every template, the
// update map f over vars is composed with the template parallelotope's
// generator function and each candidate direction offset is bounded by
// the maximum Bernstein coefficient reduced through finder. The
// per-direction offset table keeps the minimum across templates under a
// lock.
//
// In OFO mode only the directions of a template row are bounded over that
// row and the result is canonicalised; in AFO mode every direction is
// bounded over every template, so canonicalisation is skipped. A
// direction left without a finite offset fails with ErrUnboundedReach.
//
// cache may be nil; when present it is consulted for control points keyed
// by template row and generator function.
//
// pool bounds the per-template subtasks: each template is submitted to a
// batch of pool, so in-flight work never exceeds the pool size. The call
// must then originate from a task of the same pool, because the wait on
// the batch releases the caller's slot. A nil pool runs the templates
// inline.
func (b *Bundle) Transform(vars []Symbol, f []Expression, finder MaxCoeffFinder, mode TransformMode, cache *ControlPointStorage, pool *parallel.Pool) (*Bundle, error) {
	if len(vars) != b.Dim() || len(f) != b.Dim() {
		return nil, fmt.Errorf("Bundle.Transform: %d variables and %d dynamics for dimension %d: %w",
			len(vars), len(f), b.Dim(), ErrInvalidInput)
	}

	size := b.Size()
	newOffp := make([]float64, size)
	newOffm := make([]float64, size)
	for i := range newOffp {
		newOffp[i] = math.Inf(1)
		newOffm[i] = math.Inf(1)
	}
	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	// generator coordinates; the prefix is reserved so user variable
	// names cannot capture them during substitution
	alpha := SymbolVector("__alpha", b.Dim())

	boundTemplate := func(r int) {
		row := b.templates[r]
		p, err := b.ParallelotopeAt(r)
		if err != nil {
			fail(err)
			return
		}
		genFun := instantiatedGeneratorFunction(alpha, p)

		repl := make(map[Symbol]Expression, len(vars))
		for k, v := range vars {
			repl[v] = genFun[k]
		}
		fog := make([]Expression, len(f))
		for k := range f {
			fog[k] = f[k].Substitute(repl)
		}

		var candidates []int
		if mode == OFO {
			candidates = row
		} else {
			candidates = make([]int, size)
			for i := range candidates {
				candidates[i] = i
			}
		}

		for _, dir := range candidates {
			coeffs, ok := []Expression(nil), false
			if cache != nil {
				coeffs, ok = cache.Lookup(row, genFun, dir)
			}
			if !ok {
				lb := Constant(0)
				for k, c := range b.directions[dir] {
					if c != 0 {
						lb = lb.Add(fog[k].Scale(c))
					}
				}
				coeffs = BernsteinCoefficients(alpha, lb)
				if cache != nil {
					cache.Store(row, genFun, dir, coeffs)
				}
			}

			mc, err := finder.FindMaxCoeffs(coeffs)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			if mc.P < newOffp[dir] {
				newOffp[dir] = mc.P
			}
			if mc.M < newOffm[dir] {
				newOffm[dir] = mc.M
			}
			mu.Unlock()
		}
	}

	if pool == nil {
		for r := range b.templates {
			boundTemplate(r)
		}
	} else {
		batch := pool.CreateBatch()
		for r := range b.templates {
			r := r
			if err := batch.Submit(func() { boundTemplate(r) }); err != nil {
				fail(err)
			}
		}
		batch.JoinWithin()
		batch.Close()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	for i := range newOffp {
		if math.IsInf(newOffp[i], 1) || math.IsInf(newOffm[i], 1) {
			return nil, fmt.Errorf("Bundle.Transform: direction %d has no finite bound after the step: %w", i, ErrUnboundedReach)
		}
	}

	res, err := NewBundle(b.directions, newOffp, newOffm, b.templates)
	if err != nil {
		return nil, err
	}
	if mode == OFO && !res.IsEmpty() {
		return res.Canonical()
	}
	return res, nil
}
