package reach

import (
	"fmt"
	"sync"
)

// ControlPointStorage caches, per bundle template, the generator function
// and the Bernstein control points already computed against it. Entries
// are validated by comparing generator functions: a hit is only returned
// while the stored generator function matches, so stale points from a
// previous step can never leak into the current one.
//
// Read-mostly; guarded by a shared/exclusive lock.
type ControlPointStorage struct {
	mu      sync.RWMutex
	entries map[string]*controlPointEntry
}

type controlPointEntry struct {
	genFun []Expression
	coeffs map[int][]Expression // direction index -> Bernstein coefficients
}

// NewControlPointStorage returns an empty cache.
func NewControlPointStorage() *ControlPointStorage {
	return &ControlPointStorage{entries: make(map[string]*controlPointEntry)}
}

func templateKey(row []int) string {
	return fmt.Sprint(row)
}

func equalExpressions(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Lookup returns the cached control points for the template row and
// direction, provided the stored generator function equals genFun.
func (s *ControlPointStorage) Lookup(row []int, genFun []Expression, dir int) ([]Expression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[templateKey(row)]
	if !ok || !equalExpressions(entry.genFun, genFun) {
		return nil, false
	}
	coeffs, ok := entry.coeffs[dir]
	return coeffs, ok
}

// Store records the control points computed for the template row and
// direction under the given generator function. A generator function
// change invalidates every direction cached for the row.
func (s *ControlPointStorage) Store(row []int, genFun []Expression, dir int, coeffs []Expression) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := templateKey(row)
	entry, ok := s.entries[key]
	if !ok || !equalExpressions(entry.genFun, genFun) {
		entry = &controlPointEntry{genFun: genFun, coeffs: make(map[int][]Expression)}
		s.entries[key] = entry
	}
	entry.coeffs[dir] = coeffs
}
