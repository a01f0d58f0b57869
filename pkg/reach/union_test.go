package reach

import (
	"testing"
)

func TestPolytopeUnionAdd(t *testing.T) {
	u := &PolytopeUnion{}
	if !u.IsEmpty() {
		t.Error("zero union must be empty")
	}

	if u.Add(mustBox(t, []float64{0}, []float64{1})) != true {
		t.Error("adding a non-empty polytope must succeed")
	}
	empty, _ := NewPolytope([][]float64{{1}, {-1}}, []float64{0, -1})
	if u.Add(empty) {
		t.Error("adding an empty polytope must be a no-op")
	}
	if u.Add(nil) {
		t.Error("adding nil must be a no-op")
	}
	if u.Size() != 1 {
		t.Errorf("union size = %d, want 1", u.Size())
	}
}

func TestPolytopeUnionContains(t *testing.T) {
	u := NewPolytopeUnion(
		mustBox(t, []float64{0}, []float64{1}),
		mustBox(t, []float64{2}, []float64{3}),
	)
	tests := []struct {
		x    float64
		want bool
	}{
		{0.5, true}, {2.5, true}, {1.5, false}, {-1, false},
	}
	for _, tt := range tests {
		if got := u.Contains([]float64{tt.x}, 1e-9); got != tt.want {
			t.Errorf("Contains(%g) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestIntersectUnions(t *testing.T) {
	u1 := NewPolytopeUnion(
		mustBox(t, []float64{0}, []float64{2}),
		mustBox(t, []float64{5}, []float64{6}),
	)
	u2 := NewPolytopeUnion(mustBox(t, []float64{1}, []float64{3}))

	inter := IntersectUnions(u1, u2)
	if inter.Size() != 1 {
		t.Fatalf("intersection size = %d, want 1 (the disjoint pair drops out)", inter.Size())
	}
	if !inter.Contains([]float64{1.5}, 1e-9) {
		t.Error("intersection must contain 1.5")
	}
	if inter.Contains([]float64{0.5}, 1e-9) {
		t.Error("intersection must not contain 0.5")
	}
}

func TestEveryUnionIsEmpty(t *testing.T) {
	empty := []*PolytopeUnion{{}, {}}
	if !everyUnionIsEmpty(empty) {
		t.Error("all-empty list reported as non-empty")
	}
	mixed := []*PolytopeUnion{{}, NewPolytopeUnion(mustBox(t, []float64{0}, []float64{1}))}
	if everyUnionIsEmpty(mixed) {
		t.Error("mixed list reported as empty")
	}
}

func TestControlPointStorage(t *testing.T) {
	s := NewControlPointStorage()
	x := NewSymbol("cps_x")
	row := []int{0, 1}
	genFun := []Expression{Var(x), Constant(1)}
	coeffs := []Expression{Constant(2)}

	if _, ok := s.Lookup(row, genFun, 0); ok {
		t.Error("lookup on an empty cache must miss")
	}
	s.Store(row, genFun, 0, coeffs)
	got, ok := s.Lookup(row, genFun, 0)
	if !ok || len(got) != 1 || !got[0].Equal(coeffs[0]) {
		t.Error("stored control points not returned")
	}

	// a different generator function invalidates the row
	other := []Expression{Var(x).Scale(2), Constant(1)}
	if _, ok := s.Lookup(row, other, 0); ok {
		t.Error("lookup with a different generator function must miss")
	}
	s.Store(row, other, 1, coeffs)
	if _, ok := s.Lookup(row, genFun, 0); ok {
		t.Error("storing a new generator function must drop the stale points")
	}
}
