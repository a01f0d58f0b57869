package reach

import (
	"fmt"

	"github.com/gitrdm/goreach/internal/parallel"
)

// DynamicalSystem is a discrete-time polynomial system: one update
// expression per variable, optionally over extra parameter symbols,
// x[t+1] = f(x[t], theta).
type DynamicalSystem struct {
	vars     []Symbol
	params   []Symbol
	dynamics []Expression

	controlPoints *ControlPointStorage
}

// NewDynamicalSystem builds a system from its variables, parameters (may
// be empty) and update expressions. It fails with ErrInvalidInput when
// the update count differs from the variable count or an update uses a
// symbol that is neither a variable nor a parameter.
func NewDynamicalSystem(vars []Symbol, params []Symbol, dynamics []Expression) (*DynamicalSystem, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("DynamicalSystem: at least one variable is required: %w", ErrInvalidInput)
	}
	if len(vars) != len(dynamics) {
		return nil, fmt.Errorf("DynamicalSystem: %d variables but %d update expressions: %w",
			len(vars), len(dynamics), ErrInvalidInput)
	}
	declared := map[Symbol]bool{}
	for _, s := range vars {
		declared[s] = true
	}
	for _, s := range params {
		declared[s] = true
	}
	for i, f := range dynamics {
		for _, s := range f.Variables() {
			if !declared[s] {
				return nil, fmt.Errorf("DynamicalSystem: update for %s uses undeclared symbol %s: %w",
					vars[i], s, ErrInvalidInput)
			}
		}
	}
	return &DynamicalSystem{
		vars:          append([]Symbol(nil), vars...),
		params:        append([]Symbol(nil), params...),
		dynamics:      append([]Expression(nil), dynamics...),
		controlPoints: NewControlPointStorage(),
	}, nil
}

// Variables returns the state symbols. Read-only.
func (ds *DynamicalSystem) Variables() []Symbol { return ds.vars }

// Parameters returns the parameter symbols. Read-only.
func (ds *DynamicalSystem) Parameters() []Symbol { return ds.params }

// Dynamics returns the update expressions. Read-only.
func (ds *DynamicalSystem) Dynamics() []Expression { return ds.dynamics }

// Dim returns the state dimension.
func (ds *DynamicalSystem) Dim() int { return len(ds.vars) }

// Transform computes the one-step image of the bundle under the system,
// using the plain coefficient finder. The system must have no parameters.
// pool bounds the per-template subtasks, as for Bundle.Transform; nil
// runs them inline.
func (ds *DynamicalSystem) Transform(b *Bundle, mode TransformMode, pool *parallel.Pool) (*Bundle, error) {
	if len(ds.params) > 0 {
		return nil, fmt.Errorf("DynamicalSystem.Transform: system has parameters, use TransformParametric: %w", ErrInvalidInput)
	}
	return b.Transform(ds.vars, ds.dynamics, NewMaxCoeffFinder(), mode, ds.controlPoints, pool)
}

// TransformParametric computes the one-step image of the bundle with the
// parameters ranging over paraSet, using the parametric coefficient
// finder. pool bounds the per-template subtasks, as for Bundle.Transform;
// nil runs them inline.
func (ds *DynamicalSystem) TransformParametric(b *Bundle, paraSet *Polytope, mode TransformMode, pool *parallel.Pool) (*Bundle, error) {
	if len(ds.params) == 0 {
		return nil, fmt.Errorf("DynamicalSystem.TransformParametric: system has no parameters: %w", ErrInvalidInput)
	}
	if paraSet == nil {
		return nil, fmt.Errorf("DynamicalSystem.TransformParametric: nil parameter set: %w", ErrInvalidInput)
	}
	finder := NewParamMaxCoeffFinder(ds.params, paraSet)
	return b.Transform(ds.vars, ds.dynamics, finder, mode, nil, pool)
}

// EulerDiscretise interprets the update expressions as continuous
// dynamics x' = g(x) and returns the Euler step system
// x[t+1] = x[t] + step*g(x[t]).
func (ds *DynamicalSystem) EulerDiscretise(step float64) *DynamicalSystem {
	dynamics := make([]Expression, len(ds.dynamics))
	for i, g := range ds.dynamics {
		dynamics[i] = Var(ds.vars[i]).Add(g.Scale(step))
	}
	return &DynamicalSystem{
		vars:          ds.vars,
		params:        ds.params,
		dynamics:      dynamics,
		controlPoints: NewControlPointStorage(),
	}
}

// Compose replaces the update map f by its k-fold composition
// f . f . ... . f before analysis. k must be at least one; k == 1 returns
// an equivalent system.
func (ds *DynamicalSystem) Compose(k int) (*DynamicalSystem, error) {
	if k < 1 {
		return nil, fmt.Errorf("DynamicalSystem.Compose: degree %d, want >= 1: %w", k, ErrInvalidInput)
	}
	composed := append([]Expression(nil), ds.dynamics...)
	for step := 1; step < k; step++ {
		repl := make(map[Symbol]Expression, len(ds.vars))
		for i, v := range ds.vars {
			repl[v] = composed[i]
		}
		next := make([]Expression, len(ds.dynamics))
		for i, f := range ds.dynamics {
			next[i] = f.Substitute(repl)
		}
		composed = next
	}
	return &DynamicalSystem{
		vars:          ds.vars,
		params:        ds.params,
		dynamics:      composed,
		controlPoints: NewControlPointStorage(),
	}, nil
}
