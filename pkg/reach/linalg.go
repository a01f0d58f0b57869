package reach

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dense-matrix helpers shared by the geometric layer. Matrices cross the
// package as [][]float64 row slices; gonum is used at the point where a
// factorisation or decomposition is needed.

func denseFromRows(rows [][]float64) *mat.Dense {
	r := len(rows)
	c := len(rows[0])
	d := mat.NewDense(r, c, nil)
	for i, row := range rows {
		d.SetRow(i, row)
	}
	return d
}

// solveLinear solves the square system M*x = b through a PLU
// factorisation. It fails with ErrSingular when a zero pivot is met.
func solveLinear(m [][]float64, b []float64) ([]float64, error) {
	if len(m) != len(b) {
		return nil, fmt.Errorf("solveLinear: %d rows but %d right-hand entries: %w", len(m), len(b), ErrInvalidInput)
	}
	var lu mat.LU
	lu.Factorize(denseFromRows(m))
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(len(b), append([]float64(nil), b...))); err != nil {
		return nil, fmt.Errorf("solveLinear: %v: %w", err, ErrSingular)
	}
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// matrixRank returns the rank of m, computed from its singular values.
func matrixRank(m [][]float64) int {
	var svd mat.SVD
	if !svd.Factorize(denseFromRows(m), mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0
	}
	tol := float64(maxInt(len(m), len(m[0]))) * values[0] * 1e-14
	rank := 0
	for _, v := range values {
		if v > tol {
			rank++
		}
	}
	return rank
}

// isSingular reports whether the square matrix m has rank below its order.
func isSingular(m [][]float64) bool {
	return matrixRank(m) < len(m)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// norm2 returns the Euclidean norm of v.
func norm2(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func negVector(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

func scaleVector(c float64, v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = c * x
	}
	return out
}

func equalVectors(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// angle returns the angle between v1 and v2 in radians.
func angle(v1, v2 []float64) float64 {
	cos := dot(v1, v2) / (norm2(v1) * norm2(v2))
	// clamp against rounding outside [-1, 1]
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// orthProx measures how close the angle between v1 and v2 is to pi/2.
func orthProx(v1, v2 []float64) float64 {
	return math.Abs(angle(v1, v2) - math.Pi/2)
}
