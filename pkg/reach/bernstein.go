package reach

// Bernstein conversion of polynomials over the unit box. For a polynomial
// p of degree vector d over variables alpha, the conversion produces one
// coefficient per multi-index k with 0 <= k_j <= d_j:
//
//	b_k = sum_{i <= k} prod_j binom(k_j, i_j)/binom(d_j, i_j) * a_i
//
// where a_i are the power-basis coefficients of p. The enclosure property
// used throughout the engine: for every alpha in [0,1]^n,
// min(b) <= p(alpha) <= max(b).

// binomial returns the binomial coefficient C(n, k) as a float64.
func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	out := 1.0
	for i := 0; i < k; i++ {
		out = out * float64(n-i) / float64(i+1)
	}
	return out
}

// multiIndex iterates over the box 0..degs inclusive in lexicographic
// order. next reports false after the last index.
type multiIndex struct {
	degs    []int
	current []int
	done    bool
}

func newMultiIndex(degs []int) *multiIndex {
	return &multiIndex{degs: degs, current: make([]int, len(degs))}
}

func (mi *multiIndex) next() ([]int, bool) {
	if mi.done {
		return nil, false
	}
	out := append([]int(nil), mi.current...)
	for pos := len(mi.current) - 1; ; pos-- {
		if pos < 0 {
			mi.done = true
			break
		}
		mi.current[pos]++
		if mi.current[pos] <= mi.degs[pos] {
			break
		}
		mi.current[pos] = 0
	}
	return out, true
}

// flatOffset maps a multi-index onto its position in the mixed-radix
// layout with radices degs+1, matching Expression.coefficientsByDegrees.
func flatOffset(index, degs []int) int {
	offset := 0
	for i, x := range index {
		offset = offset*(degs[i]+1) + x
	}
	return offset
}

// BernsteinCoefficients converts p, viewed as a polynomial in alpha over
// the unit box [0,1]^len(alpha), to its multivariate Bernstein
// coefficients. Each returned coefficient is an expression free of alpha;
// symbols other than alpha stay symbolic, so parametric polynomials yield
// parametric coefficients.
func BernsteinCoefficients(alpha []Symbol, p Expression) []Expression {
	powerCoeffs, degs := p.coefficientsByDegrees(alpha)

	var coeffs []Expression
	outer := newMultiIndex(degs)
	for {
		k, ok := outer.next()
		if !ok {
			break
		}
		b := Constant(0)
		inner := newMultiIndex(k)
		for {
			i, ok := inner.next()
			if !ok {
				break
			}
			a, ok := powerCoeffs[flatOffset(i, degs)]
			if !ok || a.IsZero() {
				continue
			}
			weight := 1.0
			for j := range i {
				weight *= binomial(k[j], i[j]) / binomial(degs[j], i[j])
			}
			b = b.Add(a.Scale(weight))
		}
		coeffs = append(coeffs, b)
	}
	return coeffs
}
