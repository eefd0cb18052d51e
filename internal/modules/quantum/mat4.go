package quantum

import (
	"math"
	"math/cmplx"
)

// Mat4 is a row-major 4x4 complex matrix acting on a qubit pair. Basis index
// 2*b0 + b1, the first qubit of the pair being the most significant.
type Mat4 [16]complex128

// Identity4 returns the 4x4 identity.
func Identity4() Mat4 {
	var m Mat4
	for k := 0; k < 4; k++ {
		m[5*k] = 1
	}
	return m
}

// SwapGate returns P, the identity with rows 1 and 2 exchanged. P exchanges the
// two qubits of a pair and P·P = I.
func SwapGate() Mat4 {
	var m Mat4
	m[0] = 1
	m[1*4+2] = 1
	m[2*4+1] = 1
	m[15] = 1
	return m
}

// At returns element (r, c).
func (m Mat4) At(r, c int) complex128 { return m[4*r+c] }

// Mul returns m·o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var s complex128
			for k := 0; k < 4; k++ {
				s += m[4*r+k] * o[4*k+c]
			}
			out[4*r+c] = s
		}
	}
	return out
}

// Dagger returns the conjugate transpose.
func (m Mat4) Dagger() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[4*c+r] = cmplx.Conj(m[4*r+c])
		}
	}
	return out
}

// Conjugate returns p·m·p. With p = SwapGate() this expresses m in the frame
// where the two qubits are exchanged.
func (m Mat4) Conjugate(p Mat4) Mat4 {
	return p.Mul(m).Mul(p)
}

// Trace returns the sum of the diagonal.
func (m Mat4) Trace() complex128 {
	return m[0] + m[5] + m[10] + m[15]
}

// Hermitize returns (m + m†)/2.
func (m Mat4) Hermitize() Mat4 {
	d := m.Dagger()
	var out Mat4
	for k := range m {
		out[k] = (m[k] + d[k]) / 2
	}
	return out
}

// MaxAbsDiff returns the largest element-wise modulus of m - o.
func (m Mat4) MaxAbsDiff(o Mat4) float64 {
	worst := 0.0
	for k := range m {
		worst = math.Max(worst, cmplx.Abs(m[k]-o[k]))
	}
	return worst
}

// Equal reports whether all elements agree within tol.
func (m Mat4) Equal(o Mat4, tol float64) bool {
	return m.MaxAbsDiff(o) <= tol
}

// IsUnitary reports whether m·m† is the identity within tol.
func (m Mat4) IsUnitary(tol float64) bool {
	return m.Mul(m.Dagger()).Equal(Identity4(), tol)
}

// Rows returns the matrix as a fresh [][]complex128.
func (m Mat4) Rows() [][]complex128 {
	rows := make([][]complex128, 4)
	for r := range rows {
		rows[r] = append([]complex128(nil), m[4*r:4*r+4]...)
	}
	return rows
}

// QubitMarginals returns the 2x2 reduced density matrices of the first and the
// second qubit of the pair, row-major.
func (m Mat4) QubitMarginals() (first, second [4]complex128) {
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			for k := 0; k < 2; k++ {
				first[2*a+b] += m[4*(2*a+k)+(2*b+k)]
				second[2*a+b] += m[4*(2*k+a)+(2*k+b)]
			}
		}
	}
	return first, second
}
