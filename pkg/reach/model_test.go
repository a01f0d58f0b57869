package reach

import (
	"errors"
	"strings"
	"testing"
)

func TestModelCheckFiniteBounds(t *testing.T) {
	x := NewSymbol("x")
	y := NewSymbol("y")
	system, err := NewDynamicalSystem([]Symbol{x, y}, nil, []Expression{Var(x), Var(y)})
	if err != nil {
		t.Fatalf("NewDynamicalSystem: %v", err)
	}

	init, err := NewBundle(
		[][]float64{{1, 0}, {0, 1}},
		[]float64{1, 1},
		[]float64{0, 0},
		[][]int{{0, 1}},
	)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	m := &Model{System: system, InitialSet: init}
	if err := m.Check(); err != nil {
		t.Errorf("bounded model rejected: %v", err)
	}

	// offsets bound x on both sides and y only from below: the check
	// must report the missing upper bound by name
	unbounded, err := NewPolytope([][]float64{{1, 0}, {-1, 0}, {0, -1}}, []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("NewPolytope: %v", err)
	}
	err = checkFiniteBounds("Variable", []Symbol{x, y}, unbounded)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unbounded variable: err = %v, want ErrInvalidInput", err)
	}
	if !strings.Contains(err.Error(), "y has no finite upper bound") {
		t.Errorf("diagnostic %q does not name the unbounded variable", err)
	}
}

func TestModelCheckDiagnostics(t *testing.T) {
	x := NewSymbol("x")
	system, _ := NewDynamicalSystem([]Symbol{x}, nil, []Expression{Var(x)})
	init, _ := NewBundle([][]float64{{1}}, []float64{1}, []float64{0}, [][]int{{0}})

	tests := []struct {
		name  string
		model Model
	}{
		{"missing system", Model{InitialSet: init}},
		{"missing initial set", Model{System: system}},
		{"decomposition weight", Model{System: system, InitialSet: init, DecompWeight: 1.5}},
		{"synthesis without spec", Model{System: system, InitialSet: init, Problem: SynthProblem,
			ParameterSet: NewPolytopeUnion(mustBox(t, []float64{0}, []float64{1}))}},
		{"synthesis without parameters", Model{System: system, InitialSet: init, Problem: SynthProblem,
			Spec: NewAtom(Var(x))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.model.Check(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Check: err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func mustBox(t *testing.T, lower, upper []float64) *Polytope {
	t.Helper()
	p, err := NewBox(lower, upper)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return p
}

func TestModelCheckDimensionMismatch(t *testing.T) {
	x := NewSymbol("x")
	y := NewSymbol("y")
	system, _ := NewDynamicalSystem([]Symbol{x, y}, nil, []Expression{Var(x), Var(y)})
	init, _ := NewBundle([][]float64{{1}}, []float64{1}, []float64{0}, [][]int{{0}})

	m := Model{System: system, InitialSet: init}
	if err := m.Check(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("dimension mismatch: err = %v, want ErrInvalidInput", err)
	}
}

func TestTrimDirections(t *testing.T) {
	directions := [][]float64{
		{1, 0},  // used
		{0, 1},  // unused
		{0, -1}, // used
		{1, 1},  // used
	}
	offp := []float64{1, 2, 3, 4}
	offm := []float64{5, 6, 7, 8}
	templates := [][]int{{0, 2}, {2, 3}}

	dirs, newOffp, newOffm, newTemplates, err := TrimDirections(directions, offp, offm, templates)
	if err != nil {
		t.Fatalf("TrimDirections: %v", err)
	}
	if len(dirs) != 3 {
		t.Fatalf("kept %d directions, want 3", len(dirs))
	}
	if !equalVectors(dirs[1], []float64{0, -1}) {
		t.Errorf("direction order not preserved: %v", dirs)
	}
	if newOffp[1] != 3 || newOffm[1] != 7 {
		t.Errorf("offsets did not follow their directions: %v / %v", newOffp, newOffm)
	}
	want := [][]int{{0, 1}, {1, 2}}
	for r := range want {
		if !equalInts(newTemplates[r], want[r]) {
			t.Errorf("template row %d remapped to %v, want %v", r, newTemplates[r], want[r])
		}
	}

	if _, _, _, _, err := TrimDirections(directions, offp, offm, [][]int{{0, 9}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("out-of-range template: err = %v, want ErrInvalidInput", err)
	}
}
