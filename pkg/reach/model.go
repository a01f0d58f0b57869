package reach

import (
	"fmt"
	"math"
)

// ProblemKind selects what the engine computes for a model.
type ProblemKind int

const (
	// ReachProblem asks for the flowpipe over the iteration horizon.
	ReachProblem ProblemKind = iota
	// SynthProblem asks for the refined parameter sets against the
	// model specification.
	SynthProblem
)

// Model gathers everything a Sapo engine needs: the dynamical system,
// the initial bundle, the optional parameter set, the optional STL
// specification, the optional assumption polytope and the analysis
// options received from the surface adapter.
type Model struct {
	Problem    ProblemKind
	Iterations uint

	System       *DynamicalSystem
	InitialSet   *Bundle
	ParameterSet *PolytopeUnion
	Spec         Formula
	Assumptions  *Polytope

	Mode             TransformMode
	DecompIterations int
	DecompWeight     float64
	MaxParamSplits   uint
	PreSplits        uint
	Seed             int64

	// CompositionDegree k > 1 replaces the update map f by the k-fold
	// composition f . f . ... . f before analysis.
	CompositionDegree int
}

// Check validates the model and returns a diagnostic naming the offending
// entity on failure. It verifies that the dynamics cover every variable,
// that the initial set dimension matches the state dimension, that every
// variable and parameter is bounded along its declared directions, and
// that the synthesis inputs are present when requested.
func (m *Model) Check() error {
	if m.System == nil {
		return fmt.Errorf("Model: no dynamical system: %w", ErrInvalidInput)
	}
	if m.InitialSet == nil {
		return fmt.Errorf("Model: no initial set: %w", ErrInvalidInput)
	}
	if m.InitialSet.Dim() != m.System.Dim() {
		return fmt.Errorf("Model: initial set dimension %d but %d variables: %w",
			m.InitialSet.Dim(), m.System.Dim(), ErrInvalidInput)
	}
	if m.DecompWeight < 0 || m.DecompWeight > 1 {
		return fmt.Errorf("Model: decomposition weight %g outside [0,1]: %w", m.DecompWeight, ErrInvalidInput)
	}
	if m.CompositionDegree < 0 {
		return fmt.Errorf("Model: composition degree %d must be non-negative: %w", m.CompositionDegree, ErrInvalidInput)
	}

	if err := checkFiniteBounds("Variable", m.System.Variables(), m.InitialSet.AsPolytope()); err != nil {
		return err
	}
	if m.ParameterSet != nil {
		for _, p := range m.ParameterSet.Sets() {
			if p.Dim() != len(m.System.Parameters()) {
				return fmt.Errorf("Model: parameter set dimension %d but %d parameters: %w",
					p.Dim(), len(m.System.Parameters()), ErrInvalidInput)
			}
			if err := checkFiniteBounds("Parameter", m.System.Parameters(), p); err != nil {
				return err
			}
		}
	}

	if m.Problem == SynthProblem {
		if m.Spec == nil {
			return fmt.Errorf("Model: synthesis requested without a specification: %w", ErrInvalidInput)
		}
		if m.ParameterSet == nil || m.ParameterSet.IsEmpty() {
			return fmt.Errorf("Model: synthesis requested without a parameter set: %w", ErrInvalidInput)
		}
	}
	return nil
}

// checkFiniteBounds verifies that every symbol is bounded from below and
// above over the polytope, reporting the first violation by name.
func checkFiniteBounds(kind string, symbols []Symbol, p *Polytope) error {
	for i, s := range symbols {
		lower, upper := p.boundingInterval(i)
		if math.IsInf(lower, 0) {
			return fmt.Errorf("%s %s has no finite lower bound: %w", kind, s, ErrInvalidInput)
		}
		if math.IsInf(upper, 0) {
			return fmt.Errorf("%s %s has no finite upper bound: %w", kind, s, ErrInvalidInput)
		}
	}
	return nil
}

// TrimDirections drops the directions not mentioned by any template row
// and remaps the template onto the reduced direction list, preserving
// order. Offsets follow their directions. Invoked during model
// construction when the surface syntax declares more directions than the
// template uses.
func TrimDirections(directions [][]float64, offp, offm []float64, templates [][]int) ([][]float64, []float64, []float64, [][]int, error) {
	if len(offp) != len(directions) || len(offm) != len(directions) {
		return nil, nil, nil, nil, fmt.Errorf("TrimDirections: %d directions but %d upper and %d lower offsets: %w",
			len(directions), len(offp), len(offm), ErrInvalidInput)
	}
	used := make([]bool, len(directions))
	for r, row := range templates {
		for _, idx := range row {
			if idx < 0 || idx >= len(directions) {
				return nil, nil, nil, nil, fmt.Errorf("TrimDirections: template row %d references direction %d, have %d directions: %w",
					r, idx, len(directions), ErrInvalidInput)
			}
			used[idx] = true
		}
	}
	remap := make([]int, len(directions))
	var keptDirs [][]float64
	var keptOffp, keptOffm []float64
	for i, u := range used {
		if !u {
			remap[i] = -1
			continue
		}
		remap[i] = len(keptDirs)
		keptDirs = append(keptDirs, directions[i])
		keptOffp = append(keptOffp, offp[i])
		keptOffm = append(keptOffm, offm[i])
	}
	newTemplates := make([][]int, len(templates))
	for r, row := range templates {
		newRow := make([]int, len(row))
		for j, idx := range row {
			newRow[j] = remap[idx]
		}
		newTemplates[r] = newRow
	}
	return keptDirs, keptOffp, keptOffm, newTemplates, nil
}
