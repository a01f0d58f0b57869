package reach

// Flowpipe is the time-indexed sequence of reach-set over-approximations
// produced by a reachability run: one polytope union per discrete step,
// with the head holding the initial set. Strictly append-only in step
// order.
type Flowpipe struct {
	steps []*PolytopeUnion
}

// Append records the union for the next time step.
func (f *Flowpipe) Append(step *PolytopeUnion) {
	f.steps = append(f.steps, step)
}

// Len returns the number of recorded steps, the initial set included.
func (f *Flowpipe) Len() int { return len(f.steps) }

// Get returns the union recorded for step i.
func (f *Flowpipe) Get(i int) *PolytopeUnion { return f.steps[i] }

// Last returns the most recent step, or nil for an empty flowpipe.
func (f *Flowpipe) Last() *PolytopeUnion {
	if len(f.steps) == 0 {
		return nil
	}
	return f.steps[len(f.steps)-1]
}

// ProgressAccounter receives progress notifications from long-running
// engine operations. Implementations must be safe for concurrent use;
// the engine owns no output channel of its own.
type ProgressAccounter interface {
	// IncreasePerformed advances the performed-step counter by delta.
	IncreasePerformed(delta uint)
	// IncreasePerformedTo raises the performed-step counter to total.
	IncreasePerformedTo(total uint)
}
