package reach

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Symbol is a named free variable of a polynomial expression. Identity is
// the stable interned id, not the name: two symbols created with the same
// name are the same symbol, and renames cannot capture substitutions.
type Symbol struct {
	id int
}

var symtab = struct {
	sync.RWMutex
	names []string
	index map[string]int
}{index: make(map[string]int)}

// NewSymbol interns name and returns its symbol. Interning is process-wide:
// repeated calls with the same name return an identical Symbol.
func NewSymbol(name string) Symbol {
	symtab.RLock()
	id, ok := symtab.index[name]
	symtab.RUnlock()
	if ok {
		return Symbol{id: id}
	}
	symtab.Lock()
	defer symtab.Unlock()
	if id, ok := symtab.index[name]; ok {
		return Symbol{id: id}
	}
	id = len(symtab.names)
	symtab.names = append(symtab.names, name)
	symtab.index[name] = id
	return Symbol{id: id}
}

// SymbolVector interns prefix0 .. prefix{n-1} and returns them in order.
func SymbolVector(prefix string, n int) []Symbol {
	syms := make([]Symbol, n)
	for i := range syms {
		syms[i] = NewSymbol(fmt.Sprintf("%s%d", prefix, i))
	}
	return syms
}

// Name returns the name the symbol was interned under.
func (s Symbol) Name() string {
	symtab.RLock()
	defer symtab.RUnlock()
	return symtab.names[s.id]
}

func (s Symbol) String() string { return s.Name() }

// monomial is one distributed term: coeff * prod(sym^exp). Exponents are
// strictly positive; a constant term has an empty exponent map.
type monomial struct {
	coeff float64
	exps  map[Symbol]int
}

// key returns the canonical encoding of the exponent map, used to merge
// like terms. Deterministic: symbols sorted by id.
func (m monomial) key() string {
	if len(m.exps) == 0 {
		return ""
	}
	syms := make([]Symbol, 0, len(m.exps))
	for s := range m.exps {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i].id < syms[j].id })
	var sb strings.Builder
	for _, s := range syms {
		fmt.Fprintf(&sb, "%d^%d|", s.id, m.exps[s])
	}
	return sb.String()
}

// Expression is a polynomial over symbols with float64 coefficients.
// Expressions are immutable values: every operation returns a new
// expression and never mutates its operands. The internal form is the
// distributed sum of monomials, so Expand is the identity on any
// expression produced by this package.
type Expression struct {
	terms map[string]monomial
}

// Constant returns the expression holding the number c.
func Constant(c float64) Expression {
	e := Expression{terms: map[string]monomial{}}
	if c != 0 {
		e.terms[""] = monomial{coeff: c}
	}
	return e
}

// Var returns the expression holding the single symbol s.
func Var(s Symbol) Expression {
	m := monomial{coeff: 1, exps: map[Symbol]int{s: 1}}
	return Expression{terms: map[string]monomial{m.key(): m}}
}

func (e Expression) clone() Expression {
	out := Expression{terms: make(map[string]monomial, len(e.terms))}
	for k, m := range e.terms {
		exps := make(map[Symbol]int, len(m.exps))
		for s, x := range m.exps {
			exps[s] = x
		}
		out.terms[k] = monomial{coeff: m.coeff, exps: exps}
	}
	return out
}

func (e Expression) addTerm(m monomial) {
	if m.coeff == 0 {
		return
	}
	k := m.key()
	if old, ok := e.terms[k]; ok {
		c := old.coeff + m.coeff
		if c == 0 {
			delete(e.terms, k)
			return
		}
		e.terms[k] = monomial{coeff: c, exps: old.exps}
		return
	}
	exps := make(map[Symbol]int, len(m.exps))
	for s, x := range m.exps {
		exps[s] = x
	}
	e.terms[k] = monomial{coeff: m.coeff, exps: exps}
}

// Add returns e + other.
func (e Expression) Add(other Expression) Expression {
	out := e.clone()
	for _, m := range other.terms {
		out.addTerm(m)
	}
	return out
}

// Sub returns e - other.
func (e Expression) Sub(other Expression) Expression {
	return e.Add(other.Neg())
}

// Neg returns -e.
func (e Expression) Neg() Expression {
	return e.Scale(-1)
}

// Scale returns c * e.
func (e Expression) Scale(c float64) Expression {
	out := Expression{terms: make(map[string]monomial, len(e.terms))}
	if c == 0 {
		return out
	}
	for k, m := range e.terms {
		exps := make(map[Symbol]int, len(m.exps))
		for s, x := range m.exps {
			exps[s] = x
		}
		out.terms[k] = monomial{coeff: c * m.coeff, exps: exps}
	}
	return out
}

// Mul returns e * other in distributed form.
func (e Expression) Mul(other Expression) Expression {
	out := Expression{terms: map[string]monomial{}}
	for _, m1 := range e.terms {
		for _, m2 := range other.terms {
			exps := make(map[Symbol]int, len(m1.exps)+len(m2.exps))
			for s, x := range m1.exps {
				exps[s] = x
			}
			for s, x := range m2.exps {
				exps[s] += x
			}
			out.addTerm(monomial{coeff: m1.coeff * m2.coeff, exps: exps})
		}
	}
	return out
}

// Div returns e / other. The divisor must be a non-zero constant; dividing
// a polynomial by a symbolic expression is not defined for this kernel.
func (e Expression) Div(other Expression) (Expression, error) {
	c, err := other.Evaluate()
	if err != nil {
		return Expression{}, fmt.Errorf("Expression.Div: divisor %s: %w", other, ErrNotConstant)
	}
	if c == 0 {
		return Expression{}, fmt.Errorf("Expression.Div: division by zero: %w", ErrInvalidInput)
	}
	return e.Scale(1 / c), nil
}

// Pow returns e raised to the non-negative integer power n.
func (e Expression) Pow(n int) Expression {
	out := Constant(1)
	for i := 0; i < n; i++ {
		out = out.Mul(e)
	}
	return out
}

// Substitute replaces every symbol in repl by its expression and returns
// the distributed result. Symbols missing from repl are left in place.
// The receiver is not modified.
func (e Expression) Substitute(repl map[Symbol]Expression) Expression {
	out := Expression{terms: map[string]monomial{}}
	for _, m := range e.terms {
		term := Constant(m.coeff)
		for s, x := range m.exps {
			sub, ok := repl[s]
			if !ok {
				sub = Var(s)
			}
			term = term.Mul(sub.Pow(x))
		}
		for _, tm := range term.terms {
			out.addTerm(tm)
		}
	}
	return out
}

// Expand returns the expression as a distributed sum of monomials. The
// internal form is already distributed, so this is a copy.
func (e Expression) Expand() Expression {
	return e.clone()
}

// Evaluate returns the numeric value of a constant expression. It fails
// with ErrNotConstant when free symbols remain.
func (e Expression) Evaluate() (float64, error) {
	v := 0.0
	for _, m := range e.terms {
		if len(m.exps) > 0 {
			return 0, fmt.Errorf("Expression.Evaluate: %s has free symbols: %w", e, ErrNotConstant)
		}
		v += m.coeff
	}
	return v, nil
}

// EvaluateAt binds every symbol to a number and evaluates. It fails with
// ErrNotConstant when a free symbol has no binding.
func (e Expression) EvaluateAt(binding map[Symbol]float64) (float64, error) {
	v := 0.0
	for _, m := range e.terms {
		t := m.coeff
		for s, x := range m.exps {
			val, ok := binding[s]
			if !ok {
				return 0, fmt.Errorf("Expression.EvaluateAt: no binding for %s: %w", s, ErrNotConstant)
			}
			t *= math.Pow(val, float64(x))
		}
		v += t
	}
	return v, nil
}

// Variables returns the free symbols of e, sorted by interning order.
func (e Expression) Variables() []Symbol {
	seen := map[Symbol]bool{}
	for _, m := range e.terms {
		for s := range m.exps {
			seen[s] = true
		}
	}
	syms := make([]Symbol, 0, len(seen))
	for s := range seen {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i].id < syms[j].id })
	return syms
}

// Degree returns the maximum exponent of s across the monomials of e.
func (e Expression) Degree(s Symbol) int {
	d := 0
	for _, m := range e.terms {
		if x := m.exps[s]; x > d {
			d = x
		}
	}
	return d
}

// IsZero reports whether e is the zero polynomial.
func (e Expression) IsZero() bool { return len(e.terms) == 0 }

// Equal reports structural equality of the distributed forms.
func (e Expression) Equal(other Expression) bool {
	if len(e.terms) != len(other.terms) {
		return false
	}
	for k, m := range e.terms {
		o, ok := other.terms[k]
		if !ok || o.coeff != m.coeff {
			return false
		}
	}
	return true
}

// LinearCoefficients views e as an affine form over vars and returns the
// coefficient vector and constant term. It fails with ErrUnsupported when
// e has degree above one in vars or couples them with other symbols.
func (e Expression) LinearCoefficients(vars []Symbol) ([]float64, float64, error) {
	idx := make(map[Symbol]int, len(vars))
	for i, s := range vars {
		idx[s] = i
	}
	coeffs := make([]float64, len(vars))
	constant := 0.0
	for _, m := range e.terms {
		switch len(m.exps) {
		case 0:
			constant += m.coeff
		case 1:
			for s, x := range m.exps {
				i, ok := idx[s]
				if !ok || x > 1 {
					return nil, 0, fmt.Errorf("Expression.LinearCoefficients: %s is not linear over the given symbols: %w", e, ErrUnsupported)
				}
				coeffs[i] += m.coeff
			}
		default:
			return nil, 0, fmt.Errorf("Expression.LinearCoefficients: %s is not linear over the given symbols: %w", e, ErrUnsupported)
		}
	}
	return coeffs, constant, nil
}

// coefficientsByDegrees groups the monomials of e by their exponent vector
// over vars. The returned map is indexed by the flat offset of the exponent
// vector in the mixed-radix system given by degs+1; values keep all other
// symbols symbolic.
func (e Expression) coefficientsByDegrees(vars []Symbol) (map[int]Expression, []int) {
	degs := make([]int, len(vars))
	for i, s := range vars {
		degs[i] = e.Degree(s)
	}
	coeffs := map[int]Expression{}
	for _, m := range e.terms {
		offset := 0
		for i, s := range vars {
			offset = offset*(degs[i]+1) + m.exps[s]
		}
		rest := monomial{coeff: m.coeff, exps: map[Symbol]int{}}
		for s, x := range m.exps {
			keep := true
			for _, v := range vars {
				if s == v {
					keep = false
					break
				}
			}
			if keep {
				rest.exps[s] = x
			}
		}
		c, ok := coeffs[offset]
		if !ok {
			c = Expression{terms: map[string]monomial{}}
		}
		c.addTerm(rest)
		coeffs[offset] = c
	}
	return coeffs, degs
}

// String renders the expression deterministically, monomials sorted by
// their canonical keys. Intended for diagnostics and tests.
func (e Expression) String() string {
	if len(e.terms) == 0 {
		return "0"
	}
	keys := make([]string, 0, len(e.terms))
	for k := range e.terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		m := e.terms[k]
		var sb strings.Builder
		fmt.Fprintf(&sb, "%g", m.coeff)
		syms := make([]Symbol, 0, len(m.exps))
		for s := range m.exps {
			syms = append(syms, s)
		}
		sort.Slice(syms, func(i, j int) bool { return syms[i].id < syms[j].id })
		for _, s := range syms {
			if x := m.exps[s]; x == 1 {
				fmt.Fprintf(&sb, "*%s", s.Name())
			} else {
				fmt.Fprintf(&sb, "*%s^%d", s.Name(), x)
			}
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, " + ")
}
