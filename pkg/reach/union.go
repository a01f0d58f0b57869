package reach

// PolytopeUnion is a finite union of polytopes over a shared ambient
// space. The zero value is the empty union.
type PolytopeUnion struct {
	sets []*Polytope
}

// NewPolytopeUnion builds a union from the given polytopes, dropping
// empty members.
func NewPolytopeUnion(sets ...*Polytope) *PolytopeUnion {
	u := &PolytopeUnion{}
	for _, p := range sets {
		u.Add(p)
	}
	return u
}

// Add appends p to the union unless it is empty. Returns true when the
// polytope was added.
func (u *PolytopeUnion) Add(p *Polytope) bool {
	if p == nil || p.IsEmpty() {
		return false
	}
	u.sets = append(u.sets, p)
	return true
}

// AddUnion appends every member of other.
func (u *PolytopeUnion) AddUnion(other *PolytopeUnion) {
	if other == nil {
		return
	}
	for _, p := range other.sets {
		u.Add(p)
	}
}

// Size returns the number of member polytopes.
func (u *PolytopeUnion) Size() int { return len(u.sets) }

// IsEmpty reports whether the union has no member polytopes.
func (u *PolytopeUnion) IsEmpty() bool { return len(u.sets) == 0 }

// Sets returns the member polytopes. The slice is shared; callers must
// not modify it.
func (u *PolytopeUnion) Sets() []*Polytope { return u.sets }

// Clone returns a deep copy.
func (u *PolytopeUnion) Clone() *PolytopeUnion {
	out := &PolytopeUnion{sets: make([]*Polytope, 0, len(u.sets))}
	for _, p := range u.sets {
		out.sets = append(out.sets, p.Clone())
	}
	return out
}

// Simplify simplifies every member polytope in place.
func (u *PolytopeUnion) Simplify() {
	for _, p := range u.sets {
		p.Simplify()
	}
}

// Contains reports whether any member contains x up to tol.
func (u *PolytopeUnion) Contains(x []float64, tol float64) bool {
	for _, p := range u.sets {
		if p.Contains(x, tol) {
			return true
		}
	}
	return false
}

// IntersectUnions returns the pairwise intersection of the members of u1
// and u2, keeping the non-empty results.
func IntersectUnions(u1, u2 *PolytopeUnion) *PolytopeUnion {
	out := &PolytopeUnion{}
	for _, p1 := range u1.sets {
		for _, p2 := range u2.sets {
			inter := p1.Clone()
			if err := inter.IntersectWith(p2); err != nil {
				continue
			}
			out.Add(inter)
		}
	}
	return out
}

// everyUnionIsEmpty reports whether every union in the list is empty.
func everyUnionIsEmpty(list []*PolytopeUnion) bool {
	for _, u := range list {
		if !u.IsEmpty() {
			return false
		}
	}
	return true
}
