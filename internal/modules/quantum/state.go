package quantum

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dim returns the Hilbert space dimension 2^L.
func Dim(numQubits int) int {
	return 1 << numQubits
}

// ValidateQubits checks that the register size is supported.
func ValidateQubits(numQubits int) error {
	if numQubits < MinQubits || numQubits > MaxQubits {
		return fmt.Errorf("%w: %d qubits (supported %d..%d)", ErrUnsupportedConfiguration, numQubits, MinQubits, MaxQubits)
	}
	return nil
}

// ValidateState checks the length of psi against the register size and
// rejects zero vectors. It does not require unit norm.
func ValidateState(psi []complex128, numQubits int) error {
	if err := ValidateQubits(numQubits); err != nil {
		return err
	}
	if len(psi) != Dim(numQubits) {
		return fmt.Errorf("%w: length %d for %d qubits, want %d", ErrInvalidState, len(psi), numQubits, Dim(numQubits))
	}
	n := Norm(psi)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: norm %v", ErrInvalidState, n)
	}
	return nil
}

// QubitsFor returns L for a state vector of length 2^L.
func QubitsFor(psi []complex128) (int, error) {
	n := len(psi)
	if n == 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("%w: length %d is not a power of two", ErrInvalidState, n)
	}
	numQubits := 0
	for 1<<numQubits < n {
		numQubits++
	}
	return numQubits, ValidateQubits(numQubits)
}

func vec(psi []complex128) cblas128.Vector {
	return cblas128.Vector{N: len(psi), Inc: 1, Data: psi}
}

// Norm returns the Euclidean norm of psi.
func Norm(psi []complex128) float64 {
	if len(psi) == 0 {
		return 0
	}
	return cblas128.Nrm2(vec(psi))
}

// Normalize returns psi scaled to unit norm.
func Normalize(psi []complex128) ([]complex128, error) {
	n := Norm(psi)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%w: cannot normalize vector of norm %v", ErrInvalidState, n)
	}
	out := CloneState(psi)
	cblas128.Scal(complex(1/n, 0), vec(out))
	return out, nil
}

// Inner returns ⟨a|b⟩.
func Inner(a, b []complex128) complex128 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cblas128.Dotc(vec(a), vec(b))
}

// Fidelity returns |⟨a|b⟩|², which is 1 iff two unit states are equal up to a
// global phase. Vectors of different length have fidelity 0.
func Fidelity(a, b []complex128) float64 {
	ov := cmplx.Abs(Inner(a, b))
	return ov * ov
}

// CloneState returns a copy of psi.
func CloneState(psi []complex128) []complex128 {
	return append([]complex128(nil), psi...)
}

// RandomState samples a state uniformly from the unit sphere of the
// 2^L-dimensional Hilbert space (normalized complex Gaussian vector).
func RandomState(numQubits int, rng *rand.Rand) []complex128 {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	psi := make([]complex128, Dim(numQubits))
	for {
		for k := range psi {
			psi[k] = complex(normal.Rand(), normal.Rand())
		}
		if out, err := Normalize(psi); err == nil {
			return out
		}
	}
}

// BasisState returns the computational basis state |index⟩.
func BasisState(numQubits, index int) []complex128 {
	psi := make([]complex128, Dim(numQubits))
	psi[index] = 1
	return psi
}

// Kron returns the tensor product a⊗b; qubits of a come first.
func Kron(a, b []complex128) []complex128 {
	out := make([]complex128, len(a)*len(b))
	for x, av := range a {
		for y, bv := range b {
			out[x*len(b)+y] = av * bv
		}
	}
	return out
}

// BellPair returns |Φ+⟩ = (|00⟩ + |11⟩)/√2.
func BellPair() []complex128 {
	s := complex(1/math.Sqrt2, 0)
	return []complex128{s, 0, 0, s}
}
