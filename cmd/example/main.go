// Package main demonstrates basic reachability analysis patterns.
//
// This example shows how to build a dynamical system, over-approximate
// its reachable states, and refine a parameter set against a temporal
// specification.
package main

import (
	"fmt"
	"log"

	"github.com/gitrdm/goreach/pkg/reach"
)

func main() {
	fmt.Println("=== goreach Examples ===")
	fmt.Println()

	scalarContraction()
	epidemicReach()
	parameterSynthesis()
}

// scalarContraction steps f(x) = 0.5x from the interval [0, 1].
func scalarContraction() {
	fmt.Println("1. Scalar Contraction:")

	x := reach.NewSymbol("x")
	system, err := reach.NewDynamicalSystem(
		[]reach.Symbol{x}, nil,
		[]reach.Expression{reach.Var(x).Scale(0.5)},
	)
	if err != nil {
		log.Fatal(err)
	}
	init, err := reach.NewBundle([][]float64{{1}}, []float64{1}, []float64{0}, [][]int{{0}})
	if err != nil {
		log.Fatal(err)
	}

	engine := reach.NewSapo(&reach.Model{System: system, InitialSet: init})
	flowpipe, err := engine.Reach(init, 4, nil)
	if err != nil {
		log.Fatal(err)
	}

	for step := 0; step < flowpipe.Len(); step++ {
		poly := flowpipe.Get(step).Sets()[0]
		fmt.Printf("   step %d: x in [%.4f, %.4f]\n", step,
			poly.Minimize([]float64{1}).ObjectiveValue(),
			poly.Maximize([]float64{1}).ObjectiveValue())
	}
	fmt.Println()
}

// epidemicReach runs an SIR-like two-variable system for ten steps.
func epidemicReach() {
	fmt.Println("2. SIR Reachability:")

	s := reach.NewSymbol("s")
	i := reach.NewSymbol("i")
	infection := reach.Var(s).Mul(reach.Var(i)).Scale(0.34)

	system, err := reach.NewDynamicalSystem(
		[]reach.Symbol{s, i}, nil,
		[]reach.Expression{
			reach.Var(s).Sub(infection),
			reach.Var(i).Add(infection).Sub(reach.Var(i).Scale(0.05)),
		},
	)
	if err != nil {
		log.Fatal(err)
	}
	init, err := reach.NewBundle(
		[][]float64{{1, 0}, {0, 1}},
		[]float64{0.95, 0.15},
		[]float64{-0.85, -0.05},
		[][]int{{0, 1}},
	)
	if err != nil {
		log.Fatal(err)
	}

	engine := reach.NewSapo(&reach.Model{System: system, InitialSet: init})
	flowpipe, err := engine.Reach(init, 10, nil)
	if err != nil {
		log.Fatal(err)
	}

	last := flowpipe.Last().Sets()[0]
	fmt.Printf("   after %d steps: s <= %.4f, i <= %.4f\n",
		flowpipe.Len()-1,
		last.Maximize([]float64{1, 0}).ObjectiveValue(),
		last.Maximize([]float64{0, 1}).ObjectiveValue())
	fmt.Println()
}

// parameterSynthesis refines p in [0.1, 2] so that x' = p*x stays below
// one for five steps.
func parameterSynthesis() {
	fmt.Println("3. Parameter Synthesis:")

	x := reach.NewSymbol("x")
	p := reach.NewSymbol("p")
	system, err := reach.NewDynamicalSystem(
		[]reach.Symbol{x}, []reach.Symbol{p},
		[]reach.Expression{reach.Var(x).Mul(reach.Var(p))},
	)
	if err != nil {
		log.Fatal(err)
	}
	init, err := reach.NewBundle([][]float64{{1}}, []float64{1}, []float64{-0.5}, [][]int{{0}})
	if err != nil {
		log.Fatal(err)
	}
	paraBox, err := reach.NewBox([]float64{0.1}, []float64{2})
	if err != nil {
		log.Fatal(err)
	}
	paraSet := reach.NewPolytopeUnion(paraBox)

	engine := reach.NewSapo(&reach.Model{
		System:       system,
		InitialSet:   init,
		ParameterSet: paraSet,
	})
	engine.MaxParamSplits = 8

	spec := reach.NewAlways(0, 5, reach.NewAtom(reach.Var(x).Sub(reach.Constant(1))))
	result, err := engine.Synthesize(init, paraSet, spec, nil)
	if err != nil {
		log.Fatal(err)
	}

	for _, union := range result {
		for _, poly := range union.Sets() {
			fmt.Printf("   retained p in [%.4f, %.4f]\n",
				poly.Minimize([]float64{1}).ObjectiveValue(),
				poly.Maximize([]float64{1}).ObjectiveValue())
		}
	}
}
