package quantum

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
)

// ApplyGate contracts the 4x4 gate g with axes (first, second) of psi, first
// being the most significant qubit of the gate basis. The 2^L x 2^L operator
// is never formed. A new slice is returned.
func ApplyGate(psi []complex128, numQubits int, g Mat4, first, second int) ([]complex128, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return nil, err
	}
	if err := validatePair(numQubits, first, second); err != nil {
		return nil, err
	}
	return applyOnAxes(psi, numQubits, g[:], []int{first, second}), nil
}

// applyOnAxes multiplies the dense operator op (2^k x 2^k, row-major) into the
// k given axes of psi.
func applyOnAxes(psi []complex128, numQubits int, op []complex128, axes []int) []complex128 {
	rows := 1 << len(axes)
	cols := len(psi) / rows
	m := gatherAxes(psi, numQubits, axes)
	out := make([]complex128, len(psi))
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1,
		cblas128.General{Rows: rows, Cols: rows, Stride: rows, Data: op},
		cblas128.General{Rows: rows, Cols: cols, Stride: cols, Data: m},
		0,
		cblas128.General{Rows: rows, Cols: cols, Stride: cols, Data: out},
	)
	return scatterAxes(out, numQubits, axes)
}

// embedWindow returns I⊗g⊗I sized for the decision's window, with g on the
// middle positions.
func embedWindow(g Mat4, dec SwapDecision) []complex128 {
	p, _ := dec.Positions()
	before := 1 << p
	after := 1 << (len(dec.Window) - p - 2)
	op := kronIdentity(before, g[:], 4)
	return kronWithIdentity(op, before*4, after)
}

// kronIdentity returns I_n ⊗ a for the d x d matrix a.
func kronIdentity(n int, a []complex128, d int) []complex128 {
	size := n * d
	out := make([]complex128, size*size)
	for blk := 0; blk < n; blk++ {
		for r := 0; r < d; r++ {
			for c := 0; c < d; c++ {
				out[(blk*d+r)*size+blk*d+c] = a[r*d+c]
			}
		}
	}
	return out
}

// kronWithIdentity returns a ⊗ I_n for the d x d matrix a.
func kronWithIdentity(a []complex128, d, n int) []complex128 {
	size := d * n
	out := make([]complex128, size*size)
	for r := 0; r < d; r++ {
		for c := 0; c < d; c++ {
			v := a[r*d+c]
			if v == 0 {
				continue
			}
			for k := 0; k < n; k++ {
				out[(r*n+k)*size+c*n+k] = v
			}
		}
	}
	return out
}

// ApplyAction applies the disentangling unitary u of pair (i, j), given in the
// natural frame, with the swap routing of that pair.
func ApplyAction(psi []complex128, numQubits int, u Mat4, i, j int) ([]complex128, SwapDecision, error) {
	dec, err := DecideSwaps(numQubits, i, j)
	if err != nil {
		return nil, SwapDecision{}, err
	}
	if err := ValidateState(psi, numQubits); err != nil {
		return nil, SwapDecision{}, fmt.Errorf("failed to apply action (%d, %d): %w", i, j, err)
	}
	g := GateMatrix(u, dec)
	return applyOnAxes(psi, numQubits, g[:], []int{dec.First, dec.Second}), dec, nil
}
