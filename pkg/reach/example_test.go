package reach_test

import (
	"fmt"

	"github.com/gitrdm/goreach/pkg/reach"
)

// A scalar contraction stepped three times: the upper bound halves at
// every step.
func ExampleSapo_Reach() {
	x := reach.NewSymbol("x")
	system, _ := reach.NewDynamicalSystem(
		[]reach.Symbol{x}, nil,
		[]reach.Expression{reach.Var(x).Scale(0.5)},
	)
	init, _ := reach.NewBundle(
		[][]float64{{1}},
		[]float64{1}, []float64{0},
		[][]int{{0}},
	)

	engine := reach.NewSapo(&reach.Model{System: system, InitialSet: init})
	flowpipe, _ := engine.Reach(init, 3, nil)

	for step := 0; step < flowpipe.Len(); step++ {
		poly := flowpipe.Get(step).Sets()[0]
		upper := poly.Maximize([]float64{1}).ObjectiveValue()
		fmt.Printf("step %d: x <= %.3f\n", step, upper)
	}
	// Output:
	// step 0: x <= 1.000
	// step 1: x <= 0.500
	// step 2: x <= 0.250
	// step 3: x <= 0.125
}

// The Bernstein coefficients of a polynomial enclose it over the unit
// box.
func ExampleBernsteinCoefficients() {
	a := reach.NewSymbol("a")
	p := reach.Var(a).Pow(2) // a^2 over [0,1]

	for _, c := range reach.BernsteinCoefficients([]reach.Symbol{a}, p) {
		v, _ := c.Evaluate()
		fmt.Printf("%.1f ", v)
	}
	fmt.Println()
	// Output:
	// 0.0 0.0 1.0
}

// PNF pushes negation down to the atoms.
func ExampleNegation_PNF() {
	x := reach.NewSymbol("x")
	formula := reach.NewNegation(
		reach.NewAlways(0, 2, reach.NewAtom(reach.Var(x).Sub(reach.Constant(3)))),
	)
	fmt.Println(formula.PNF())
	// Output:
	// F_[0,2](3 + -1*x <= 0)
}
