// Package reach analyses discrete-time polynomial dynamical systems.
//
// The package over-approximates the states reachable from an initial set
// under a polynomial update map, and refines parameter sets against Signal
// Temporal Logic specifications:
//
//   - [Bundle]: intersection of parallelotopes sharing a direction matrix,
//     the working representation of a reachable set
//   - [Polytope] and [PolytopeUnion]: H-representation sets backed by a
//     linear-programming client
//   - [BernsteinCoefficients]: enclosure of a polynomial over the unit box
//   - [Sapo]: the reach and synthesize fix-point loops
//
// # Reachability
//
// A one-step image is computed per bundle template: the template's
// parallelotope is put in generator form, the update map is composed with
// the generator function, and each direction's offset is tightened to the
// maximum Bernstein coefficient of the composed polynomial:
//
//	engine := reach.NewSapo(model)
//	flowpipe, err := engine.Reach(model.InitialSet, 20, nil)
//	if err != nil {
//	    // partial flowpipe prefix is still valid
//	}
//
// # Parameter synthesis
//
// Given a parametric map and an STL specification, [Sapo.Synthesize] returns
// the parameter subsets for which every trajectory from the initial set
// satisfies the specification. Formulas are rewritten to Positive Normal
// Form first, then refined by structural recursion over the operators.
package reach
