package quantum

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
)

func validatePair(numQubits, i, j int) error {
	if i < 0 || j < 0 || i >= numQubits || j >= numQubits || i == j {
		return fmt.Errorf("%w: pair (%d, %d) on %d qubits", ErrInvalidAction, i, j, numQubits)
	}
	return nil
}

// PairRDM returns the reduced density matrix of qubits (i, j), basis index
// 2*b_i + b_j. Any pair order and adjacency is accepted.
func PairRDM(psi []complex128, numQubits, i, j int) (Mat4, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return Mat4{}, err
	}
	if err := validatePair(numQubits, i, j); err != nil {
		return Mat4{}, err
	}
	return pairRDM(psi, numQubits, i, j), nil
}

// RDMs returns the pair RDMs of psi in action order.
func RDMs(psi []complex128, numQubits int) ([]Mat4, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return nil, err
	}
	return allRDMs(psi, numQubits), nil
}

func allRDMs(psi []complex128, numQubits int) []Mat4 {
	out := make([]Mat4, 0, numQubits*(numQubits-1)/2)
	for i := 0; i < numQubits; i++ {
		for j := i + 1; j < numQubits; j++ {
			out = append(out, pairRDM(psi, numQubits, i, j))
		}
	}
	return out
}

// pairRDM moves axes (i, j) to the front, views the state as a 4 x 2^(L-2)
// matrix M and returns M·M^H.
func pairRDM(psi []complex128, numQubits, i, j int) Mat4 {
	m := gatherAxes(psi, numQubits, []int{i, j})
	var rho Mat4
	gram(m, 4, rho[:])
	return rho
}

// qubitRDM returns the 2x2 reduced density matrix of qubit q, row-major.
func qubitRDM(psi []complex128, numQubits, q int) [4]complex128 {
	m := gatherAxes(psi, numQubits, []int{q})
	var rho [4]complex128
	gram(m, 2, rho[:])
	return rho
}

// gram writes M·M^H into out for the rows x (len(m)/rows) matrix m.
func gram(m []complex128, rows int, out []complex128) {
	cols := len(m) / rows
	a := cblas128.General{Rows: rows, Cols: cols, Stride: cols, Data: m}
	c := cblas128.General{Rows: rows, Cols: rows, Stride: rows, Data: out}
	cblas128.Gemm(blas.NoTrans, blas.ConjTrans, 1, a, a, 0, c)
}
