package quantum

import "fmt"

// bitOf returns the value of qubit q in basis index s of an L-qubit register.
// Qubit 0 is the most significant bit.
func bitOf(s, q, numQubits int) int {
	return (s >> (numQubits - 1 - q)) & 1
}

// restAxes lists the qubits not in axes, ascending.
func restAxes(numQubits int, axes []int) []int {
	in := make([]bool, numQubits)
	for _, a := range axes {
		in[a] = true
	}
	rest := make([]int, 0, numQubits-len(axes))
	for q := 0; q < numQubits; q++ {
		if !in[q] {
			rest = append(rest, q)
		}
	}
	return rest
}

// frontLayout maps every basis index of the register to its position in the
// layout where the given axes lead (in the given order) and the remaining
// qubits follow in ascending order. Viewed as a matrix, the layout has
// 2^len(axes) rows and 2^(L-len(axes)) columns.
func frontLayout(numQubits int, axes []int) []int {
	rest := restAxes(numQubits, axes)
	restBits := len(rest)
	layout := make([]int, 1<<numQubits)
	for s := range layout {
		front := 0
		for _, a := range axes {
			front = front<<1 | bitOf(s, a, numQubits)
		}
		back := 0
		for _, q := range rest {
			back = back<<1 | bitOf(s, q, numQubits)
		}
		layout[s] = front<<restBits | back
	}
	return layout
}

// gatherAxes returns a copy of psi rearranged so the given axes lead.
func gatherAxes(psi []complex128, numQubits int, axes []int) []complex128 {
	layout := frontLayout(numQubits, axes)
	out := make([]complex128, len(psi))
	for s, p := range layout {
		out[p] = psi[s]
	}
	return out
}

// scatterAxes is the inverse of gatherAxes.
func scatterAxes(buf []complex128, numQubits int, axes []int) []complex128 {
	layout := frontLayout(numQubits, axes)
	out := make([]complex128, len(buf))
	for s, p := range layout {
		out[s] = buf[p]
	}
	return out
}

// TransposeQubits relabels the qubits of psi: axis k of the result is axis
// perm[k] of the input.
func TransposeQubits(psi []complex128, numQubits int, perm []int) ([]complex128, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return nil, err
	}
	if len(perm) != numQubits {
		return nil, fmt.Errorf("%w: permutation %v for %d qubits", ErrInvalidState, perm, numQubits)
	}
	seen := make([]bool, numQubits)
	for _, p := range perm {
		if p < 0 || p >= numQubits || seen[p] {
			return nil, fmt.Errorf("%w: permutation %v for %d qubits", ErrInvalidState, perm, numQubits)
		}
		seen[p] = true
	}
	return gatherAxes(psi, numQubits, perm), nil
}
