package reach

import (
	"errors"
	"math"
	"testing"
)

func TestSymbolInterning(t *testing.T) {
	a := NewSymbol("intern_x")
	b := NewSymbol("intern_x")
	c := NewSymbol("intern_y")

	if a != b {
		t.Errorf("same name must intern to the same symbol: %v vs %v", a, b)
	}
	if a == c {
		t.Error("distinct names must intern to distinct symbols")
	}
	if a.Name() != "intern_x" {
		t.Errorf("Name() = %q, want %q", a.Name(), "intern_x")
	}
}

func TestSymbolVector(t *testing.T) {
	syms := SymbolVector("sv", 3)
	if len(syms) != 3 {
		t.Fatalf("len = %d, want 3", len(syms))
	}
	for i, s := range syms {
		want := map[int]string{0: "sv0", 1: "sv1", 2: "sv2"}[i]
		if s.Name() != want {
			t.Errorf("symbol %d named %q, want %q", i, s.Name(), want)
		}
	}
}

func TestExpressionArithmetic(t *testing.T) {
	x := NewSymbol("ea_x")
	y := NewSymbol("ea_y")

	tests := []struct {
		name    string
		expr    Expression
		binding map[Symbol]float64
		want    float64
	}{
		{
			name:    "sum",
			expr:    Var(x).Add(Var(y)),
			binding: map[Symbol]float64{x: 2, y: 3},
			want:    5,
		},
		{
			name:    "product distributes",
			expr:    Var(x).Add(Constant(1)).Mul(Var(x).Sub(Constant(1))),
			binding: map[Symbol]float64{x: 3},
			want:    8, // (x+1)(x-1) = x^2-1
		},
		{
			name:    "negation",
			expr:    Var(x).Mul(Var(y)).Neg(),
			binding: map[Symbol]float64{x: 2, y: 5},
			want:    -10,
		},
		{
			name:    "scale",
			expr:    Var(x).Scale(0.5),
			binding: map[Symbol]float64{x: 3},
			want:    1.5,
		},
		{
			name:    "power",
			expr:    Var(x).Pow(3),
			binding: map[Symbol]float64{x: 2},
			want:    8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.expr.EvaluateAt(tt.binding)
			if err != nil {
				t.Fatalf("EvaluateAt: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("EvaluateAt = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestExpressionSubstitute(t *testing.T) {
	x := NewSymbol("sub_x")
	y := NewSymbol("sub_y")

	// (x^2 + y) with x -> y + 1 must evaluate as ((y+1)^2 + y)
	e := Var(x).Pow(2).Add(Var(y))
	sub := e.Substitute(map[Symbol]Expression{x: Var(y).Add(Constant(1))})

	for _, v := range []float64{-2, 0, 0.5, 3} {
		got, err := sub.EvaluateAt(map[Symbol]float64{y: v})
		if err != nil {
			t.Fatalf("EvaluateAt: %v", err)
		}
		want := (v+1)*(v+1) + v
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("substituted(%g) = %g, want %g", v, got, want)
		}
	}

	// the input expression is untouched
	got, err := e.EvaluateAt(map[Symbol]float64{x: 2, y: 1})
	if err != nil || got != 5 {
		t.Errorf("original expression changed: got %g, %v", got, err)
	}
}

func TestExpressionExpandPreservesValues(t *testing.T) {
	x := NewSymbol("exp_x")
	y := NewSymbol("exp_y")
	e := Var(x).Add(Var(y)).Mul(Var(x).Sub(Var(y))).Add(Var(y).Pow(2))

	expanded := e.Expand()
	binding := map[Symbol]float64{x: 1.5, y: -0.25}
	before, err1 := e.EvaluateAt(binding)
	after, err2 := expanded.EvaluateAt(binding)
	if err1 != nil || err2 != nil {
		t.Fatalf("EvaluateAt: %v, %v", err1, err2)
	}
	if math.Abs(before-after) > 1e-12 {
		t.Errorf("expand changed the value: %g vs %g", before, after)
	}
	if !expanded.Equal(Var(x).Pow(2)) {
		t.Errorf("(x+y)(x-y)+y^2 should expand to x^2, got %s", expanded)
	}
}

func TestExpressionEvaluateNotConstant(t *testing.T) {
	x := NewSymbol("nc_x")
	if _, err := Var(x).Evaluate(); !errors.Is(err, ErrNotConstant) {
		t.Errorf("Evaluate on a free expression: err = %v, want ErrNotConstant", err)
	}
	v, err := Constant(2).Mul(Constant(3)).Evaluate()
	if err != nil || v != 6 {
		t.Errorf("Evaluate(2*3) = %g, %v", v, err)
	}
}

func TestExpressionDiv(t *testing.T) {
	x := NewSymbol("div_x")
	half, err := Var(x).Div(Constant(2))
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	got, _ := half.EvaluateAt(map[Symbol]float64{x: 3})
	if got != 1.5 {
		t.Errorf("x/2 at 3 = %g, want 1.5", got)
	}

	if _, err := Constant(1).Div(Var(x)); !errors.Is(err, ErrNotConstant) {
		t.Errorf("dividing by a symbol: err = %v, want ErrNotConstant", err)
	}
	if _, err := Var(x).Div(Constant(0)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("dividing by zero: err = %v, want ErrInvalidInput", err)
	}
}

func TestExpressionVariablesAndDegree(t *testing.T) {
	x := NewSymbol("vd_x")
	y := NewSymbol("vd_y")
	e := Var(x).Pow(3).Mul(Var(y)).Add(Var(y).Pow(2))

	vars := e.Variables()
	if len(vars) != 2 {
		t.Fatalf("Variables() returned %d symbols, want 2", len(vars))
	}
	if e.Degree(x) != 3 || e.Degree(y) != 2 {
		t.Errorf("degrees = (%d, %d), want (3, 2)", e.Degree(x), e.Degree(y))
	}
	if Constant(4).Degree(x) != 0 {
		t.Error("constant must have degree 0")
	}
}

func TestExpressionLinearCoefficients(t *testing.T) {
	x := NewSymbol("lc_x")
	y := NewSymbol("lc_y")

	coeffs, constant, err := Var(x).Scale(2).Sub(Var(y)).Add(Constant(7)).LinearCoefficients([]Symbol{x, y})
	if err != nil {
		t.Fatalf("LinearCoefficients: %v", err)
	}
	if coeffs[0] != 2 || coeffs[1] != -1 || constant != 7 {
		t.Errorf("coefficients = %v, %g; want [2 -1], 7", coeffs, constant)
	}

	if _, _, err := Var(x).Mul(Var(y)).LinearCoefficients([]Symbol{x, y}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("bilinear term: err = %v, want ErrUnsupported", err)
	}
	if _, _, err := Var(x).Pow(2).LinearCoefficients([]Symbol{x}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("quadratic term: err = %v, want ErrUnsupported", err)
	}
}
