package reach

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/gitrdm/goreach/internal/parallel"
)

// Sapo is the analysis engine: it composes bundle transformation, set
// refinement and splitting into the reach and synthesize fix-point loops.
// Option fields may be adjusted between runs; a Sapo must not be shared
// while a run is in flight.
type Sapo struct {
	system      *DynamicalSystem
	assumptions *Polytope

	// Mode selects the bundle transformation mode.
	Mode TransformMode
	// DecompIterations enables template decomposition after each step
	// when positive, running that many random swap trials.
	DecompIterations int
	// DecompWeight balances offset distance against orthogonality in
	// the decomposition objective; must lie in [0,1].
	DecompWeight float64
	// MaxParamSplits bounds the refinement rounds synthesis may use to
	// escape an empty solution.
	MaxParamSplits uint
	// PreSplits splits each parameter polytope before synthesis starts.
	PreSplits uint
	// MaxBundleMagnitude bounds the direction spans of the bundles: the
	// initial bundle is split down to spans of at most this value, every
	// stepped bundle down to SplitMagnitudeRatio times it; +Inf disables
	// splitting.
	MaxBundleMagnitude float64
	// Seed drives every randomised choice in the run; runs with equal
	// inputs and seeds produce equal outputs.
	Seed int64

	pool *parallel.Pool
}

// NewSapo builds an engine for the model, adopting its analysis options.
// The model should have been validated with Check first. A composition
// degree above one replaces the update map by its composition before any
// analysis runs.
func NewSapo(m *Model) *Sapo {
	system := m.System
	if m.CompositionDegree > 1 && system != nil {
		if composed, err := system.Compose(m.CompositionDegree); err == nil {
			system = composed
		}
	}
	return &Sapo{
		system:             system,
		assumptions:        m.Assumptions,
		Mode:               m.Mode,
		DecompIterations:   m.DecompIterations,
		DecompWeight:       m.DecompWeight,
		MaxParamSplits:     m.MaxParamSplits,
		PreSplits:          m.PreSplits,
		MaxBundleMagnitude: math.Inf(1),
		Seed:               m.Seed,
		pool:               parallel.NewPool(0),
	}
}

// System returns the engine's dynamical system.
func (s *Sapo) System() *DynamicalSystem { return s.system }

// stepRNG derives a deterministic per-task RNG so decomposition results
// do not depend on goroutine scheduling.
func (s *Sapo) stepRNG(step uint, task int) *rand.Rand {
	return rand.New(rand.NewSource(s.Seed + int64(step)*1_000_003 + int64(task)))
}

// stepBundle applies one reach step to a bundle: transform (optionally
// parametric over paraSet), intersect the assumptions, decompose when
// enabled. It returns nil when the stepped bundle is empty.
func (s *Sapo) stepBundle(b *Bundle, paraSet *Polytope, rng *rand.Rand) (*Bundle, error) {
	var next *Bundle
	var err error
	if paraSet != nil {
		next, err = s.system.TransformParametric(b, paraSet, s.Mode, s.pool)
	} else {
		next, err = s.system.Transform(b, s.Mode, s.pool)
	}
	if err != nil {
		return nil, err
	}
	next.IntersectWithPolytope(s.assumptions)
	if s.DecompIterations > 0 {
		next, err = next.Decompose(s.DecompWeight, s.DecompIterations, rng)
		if err != nil {
			return nil, err
		}
	}
	if next.IsEmpty() {
		return nil, nil
	}
	return next, nil
}

// Reach over-approximates the states reachable from init within k steps.
// The returned flowpipe holds one polytope union per step, the initial
// set first. When a step fails, the flowpipe prefix built so far is
// returned together with the error; an empty step simply terminates the
// run with the partial flowpipe.
func (s *Sapo) Reach(init *Bundle, k uint, acc ProgressAccounter) (*Flowpipe, error) {
	init = init.Clone()
	init.IntersectWithPolytope(s.assumptions)

	current := init.Split(s.MaxBundleMagnitude, 1.0)

	last := NewPolytopeUnion(init.AsPolytope())
	last.Simplify()
	flowpipe := &Flowpipe{}
	flowpipe.Append(last)

	for step := uint(1); step <= k && !last.IsEmpty(); step++ {
		last = &PolytopeUnion{}
		var next []*Bundle
		var mu sync.Mutex
		var stepErr error

		batch := s.pool.CreateBatch()
		for i, b := range current {
			i, b := i, b
			batch.Submit(func() {
				nb, err := s.stepBundle(b, nil, s.stepRNG(step, i))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if stepErr == nil {
						stepErr = err
					}
					return
				}
				if nb == nil {
					return
				}
				next = append(next, nb.Split(s.MaxBundleMagnitude, SplitMagnitudeRatio)...)
				last.Add(nb.AsPolytope())
			})
		}
		batch.Join()
		batch.Close()

		if stepErr != nil {
			return flowpipe, fmt.Errorf("Sapo.Reach: step %d: %w", step, stepErr)
		}
		flowpipe.Append(last)
		current = next
		if acc != nil {
			acc.IncreasePerformed(1)
		}
	}
	return flowpipe, nil
}

// ReachParametric over-approximates the reachable states with the system
// parameters ranging over paraSet. Every parameter polytope evolves its
// own bundle list; the per-step union merges across all of them.
func (s *Sapo) ReachParametric(init *Bundle, paraSet *PolytopeUnion, k uint, acc ProgressAccounter) (*Flowpipe, error) {
	if paraSet == nil || paraSet.IsEmpty() {
		return nil, fmt.Errorf("Sapo.ReachParametric: empty parameter set: %w", ErrInfeasible)
	}
	init = init.Clone()
	init.IntersectWithPolytope(s.assumptions)

	seed := init.Split(s.MaxBundleMagnitude, 1.0)
	current := make([][]*Bundle, paraSet.Size())
	for i := range current {
		current[i] = seed
	}

	last := NewPolytopeUnion(init.AsPolytope())
	last.Simplify()
	flowpipe := &Flowpipe{}
	flowpipe.Append(last)

	for step := uint(1); step <= k && !last.IsEmpty(); step++ {
		last = &PolytopeUnion{}
		next := make([][]*Bundle, paraSet.Size())
		var mu sync.Mutex
		var stepErr error

		batch := s.pool.CreateBatch()
		for pos, pPoly := range paraSet.Sets() {
			pos, pPoly := pos, pPoly
			bundles := current[pos]
			batch.Submit(func() {
				for i, b := range bundles {
					nb, err := s.stepBundle(b, pPoly, s.stepRNG(step, pos*len(bundles)+i))
					mu.Lock()
					if err != nil {
						if stepErr == nil {
							stepErr = err
						}
						mu.Unlock()
						return
					}
					if nb != nil {
						next[pos] = append(next[pos], nb.Split(s.MaxBundleMagnitude, SplitMagnitudeRatio)...)
						last.Add(nb.AsPolytope())
					}
					mu.Unlock()
				}
			})
		}
		batch.Join()
		batch.Close()

		if stepErr != nil {
			return flowpipe, fmt.Errorf("Sapo.ReachParametric: step %d: %w", step, stepErr)
		}
		flowpipe.Append(last)
		current = next
		if acc != nil {
			acc.IncreasePerformed(1)
		}
	}
	if acc != nil {
		acc.IncreasePerformedTo(k)
	}
	return flowpipe, nil
}

// finerCovering refines a list of parameter-set unions: singleton unions
// are split into at most numSplits+1 covering pieces, larger unions are unpacked
// into one union per member.
func finerCovering(orig []*PolytopeUnion, numSplits uint) []*PolytopeUnion {
	var out []*PolytopeUnion
	for _, u := range orig {
		switch u.Size() {
		case 0:
			// nothing to refine
		case 1:
			for _, piece := range u.Sets()[0].Split(numSplits) {
				out = append(out, NewPolytopeUnion(piece))
			}
		default:
			for _, p := range u.Sets() {
				out = append(out, NewPolytopeUnion(p))
			}
		}
	}
	return out
}

// Synthesize refines paraSet to the parameter valuations for which every
// trajectory from init satisfies formula. The formula is rewritten to
// PNF first. The parameter set is pre-split PreSplits times; whenever the
// refined solution comes back empty, the covering is refined again, up to
// MaxParamSplits rounds. Every returned union is simplified.
//
// Assumptions are not supported during synthesis.
func (s *Sapo) Synthesize(init *Bundle, paraSet *PolytopeUnion, formula Formula, acc ProgressAccounter) ([]*PolytopeUnion, error) {
	if s.assumptions != nil && s.assumptions.Rows() > 0 {
		return nil, fmt.Errorf("Sapo.Synthesize: assumptions are not supported in synthesis: %w", ErrUnsupported)
	}
	formula = formula.PNF()

	list := []*PolytopeUnion{paraSet.Clone()}
	if s.PreSplits > 0 {
		list = finerCovering(list, s.PreSplits)
	}

	res, err := s.synthesizeList(init, list, formula, acc)
	if err != nil {
		return nil, err
	}
	for splits := uint(0); everyUnionIsEmpty(res) && splits < s.MaxParamSplits; splits++ {
		list = finerCovering(list, math.MaxUint32)
		if res, err = s.synthesizeList(init, list, formula, acc); err != nil {
			return nil, err
		}
	}

	for _, u := range res {
		u.Simplify()
	}
	return res, nil
}

// synthesizeList refines every parameter union of the list independently
// through the pool.
func (s *Sapo) synthesizeList(init *Bundle, list []*PolytopeUnion, formula Formula, acc ProgressAccounter) ([]*PolytopeUnion, error) {
	res := make([]*PolytopeUnion, len(list))
	errs := make([]error, len(list))

	batch := s.pool.CreateBatch()
	for i, u := range list {
		i, u := i, u
		batch.Submit(func() {
			res[i], errs[i] = s.synthesizeFormula(init, u, formula)
			if acc != nil {
				acc.IncreasePerformed(uint(formula.TimeBounds().End))
			}
		})
	}
	batch.Join()
	batch.Close()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// synthesizeFormula is the structural recursion over the (PNF) formula.
// Temporal operators restart their clock at zero: operator intervals are
// relative to the moment the operator is reached.
func (s *Sapo) synthesizeFormula(init *Bundle, pSet *PolytopeUnion, formula Formula) (*PolytopeUnion, error) {
	if pSet.IsEmpty() {
		return &PolytopeUnion{}, nil
	}
	switch f := formula.(type) {
	case *Atom:
		return s.synthesizeAtom(init, pSet, f)
	case *Conjunction:
		left, err := s.synthesizeFormula(init, pSet, f.Left())
		if err != nil {
			return nil, err
		}
		right, err := s.synthesizeFormula(init, pSet, f.Right())
		if err != nil {
			return nil, err
		}
		return IntersectUnions(left, right), nil
	case *Disjunction:
		left, err := s.synthesizeFormula(init, pSet, f.Left())
		if err != nil {
			return nil, err
		}
		right, err := s.synthesizeFormula(init, pSet, f.Right())
		if err != nil {
			return nil, err
		}
		left.AddUnion(right)
		return left, nil
	case *Eventually:
		until := NewUntil(TrueAtom(), f.Interval().Begin, f.Interval().End, f.Subformula())
		return s.synthesizeUntil(init, pSet, until, 0)
	case *Until:
		return s.synthesizeUntil(init, pSet, f, 0)
	case *Always:
		return s.synthesizeAlways(init, pSet, f, 0)
	default:
		return nil, fmt.Errorf("Sapo.Synthesize: %s formulas are not supported here: %w", formula, ErrUnsupported)
	}
}

// synthesizeAtom keeps the parameter subset for which every state of
// init satisfies the atom predicate. For each template parallelotope the
// predicate is composed with the generator function; all its Bernstein
// control points must be non-positive, each contributing one linear
// parameter constraint.
func (s *Sapo) synthesizeAtom(init *Bundle, pSet *PolytopeUnion, atom *Atom) (*PolytopeUnion, error) {
	result := pSet.Clone()
	alpha := SymbolVector("__alpha", init.Dim())
	vars := s.system.Variables()
	params := s.system.Parameters()

	for r := 0; r < init.NumTemplates(); r++ {
		p, err := init.ParallelotopeAt(r)
		if err != nil {
			return nil, err
		}
		genFun := instantiatedGeneratorFunction(alpha, p)
		repl := make(map[Symbol]Expression, len(vars))
		for k, v := range vars {
			repl[v] = genFun[k]
		}
		composed := atom.Predicate().Substitute(repl)

		for _, coeff := range BernsteinCoefficients(alpha, composed) {
			if value, err := coeff.Evaluate(); err == nil {
				// parameter-free control point: either it already holds
				// for every parameter or for none
				if value > 0 {
					return &PolytopeUnion{}, nil
				}
				continue
			}
			obj, constant, err := coeff.LinearCoefficients(params)
			if err != nil {
				return nil, fmt.Errorf("Sapo.Synthesize: atom control point %s: %w", coeff, err)
			}
			refined := &PolytopeUnion{}
			for _, poly := range result.Sets() {
				next := poly.Clone()
				if err := next.AddConstraint(obj, -constant); err != nil {
					return nil, err
				}
				refined.Add(next)
			}
			result = refined
			if result.IsEmpty() {
				return result, nil
			}
		}
	}
	return result, nil
}

// synthesizeUntil unfolds phi U_[a,b] psi at the given time.
func (s *Sapo) synthesizeUntil(init *Bundle, pSet *PolytopeUnion, u *Until, time int) (*PolytopeUnion, error) {
	interval := u.Interval()
	if interval.IsEmpty() {
		return &PolytopeUnion{}, nil
	}

	// interval entirely ahead: phi must hold now, then transition
	if interval.After(time) {
		p1, err := s.synthesizeFormula(init, pSet, u.Left())
		if err != nil || p1.IsEmpty() {
			return p1, err
		}
		return s.transitionAndSynthesize(init, p1, u, time)
	}

	// inside the interval: either psi holds now, or phi holds and the
	// until is deferred one step
	if interval.End > time {
		p1, err := s.synthesizeFormula(init, pSet, u.Left())
		if err != nil {
			return nil, err
		}
		if p1.IsEmpty() {
			return s.synthesizeFormula(init, pSet, u.Right())
		}
		result, err := s.transitionAndSynthesize(init, p1, u, time)
		if err != nil {
			return nil, err
		}
		right, err := s.synthesizeFormula(init, pSet, u.Right())
		if err != nil {
			return nil, err
		}
		result.AddUnion(right)
		return result, nil
	}

	// time == interval.End: psi must hold now
	return s.synthesizeFormula(init, pSet, u.Right())
}

// synthesizeAlways unfolds G_[a,b] phi at the given time.
func (s *Sapo) synthesizeAlways(init *Bundle, pSet *PolytopeUnion, g *Always, time int) (*PolytopeUnion, error) {
	interval := g.Interval()
	if interval.IsEmpty() {
		return &PolytopeUnion{}, nil
	}

	// interval entirely ahead: just transition closer
	if interval.After(time) {
		return s.transitionAndSynthesize(init, pSet, g, time)
	}

	// inside the interval: phi must hold now and on every later step of
	// the window
	if interval.End > time {
		refined, err := s.synthesizeFormula(init, pSet, g.Subformula())
		if err != nil || refined.IsEmpty() {
			return refined, err
		}
		return s.transitionAndSynthesize(init, refined, g, time)
	}

	// time == interval.End
	return s.synthesizeFormula(init, pSet, g.Subformula())
}

// transitionAndSynthesize advances init one step under each parameter
// polytope of pSet separately and resumes the temporal recursion at
// time+1 against that polytope alone.
func (s *Sapo) transitionAndSynthesize(init *Bundle, pSet *PolytopeUnion, formula Formula, time int) (*PolytopeUnion, error) {
	result := &PolytopeUnion{}
	for _, pPoly := range pSet.Sets() {
		var reached *Bundle
		var err error
		if len(s.system.Parameters()) > 0 {
			reached, err = s.system.TransformParametric(init, pPoly, s.Mode, s.pool)
		} else {
			reached, err = s.system.Transform(init, s.Mode, s.pool)
		}
		if err != nil {
			return nil, err
		}
		singleton := NewPolytopeUnion(pPoly)
		var sub *PolytopeUnion
		switch f := formula.(type) {
		case *Until:
			sub, err = s.synthesizeUntil(reached, singleton, f, time+1)
		case *Always:
			sub, err = s.synthesizeAlways(reached, singleton, f, time+1)
		default:
			return nil, fmt.Errorf("Sapo.Synthesize: transition on non-temporal formula %s: %w", formula, ErrUnsupported)
		}
		if err != nil {
			return nil, err
		}
		result.AddUnion(sub)
	}
	return result, nil
}
