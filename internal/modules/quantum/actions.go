package quantum

import "fmt"

// ActionSpace enumerates the unordered qubit pairs of an L-qubit register in
// lexicographic order: (0,1), (0,2), ..., (0,L-1), (1,2), ...
// It is immutable after construction and safe for concurrent reads.
type ActionSpace struct {
	numQubits int
	pairs     [][2]int
	index     []int // index[i*L+j] for i < j
}

// NewActionSpace builds the action table for numQubits qubits.
func NewActionSpace(numQubits int) (*ActionSpace, error) {
	if err := ValidateQubits(numQubits); err != nil {
		return nil, err
	}
	as := &ActionSpace{
		numQubits: numQubits,
		pairs:     make([][2]int, 0, numQubits*(numQubits-1)/2),
		index:     make([]int, numQubits*numQubits),
	}
	for k := range as.index {
		as.index[k] = -1
	}
	for i := 0; i < numQubits; i++ {
		for j := i + 1; j < numQubits; j++ {
			as.index[i*numQubits+j] = len(as.pairs)
			as.pairs = append(as.pairs, [2]int{i, j})
		}
	}
	return as, nil
}

// NumQubits returns L.
func (as *ActionSpace) NumQubits() int { return as.numQubits }

// NumActions returns C(L, 2).
func (as *ActionSpace) NumActions() int { return len(as.pairs) }

// Decode returns the pair (i, j), i < j, of action a.
func (as *ActionSpace) Decode(a int) (int, int, error) {
	if a < 0 || a >= len(as.pairs) {
		return 0, 0, fmt.Errorf("%w: action %d outside [0, %d)", ErrInvalidAction, a, len(as.pairs))
	}
	p := as.pairs[a]
	return p[0], p[1], nil
}

// Encode returns the action index of the unordered pair {i, j}.
func (as *ActionSpace) Encode(i, j int) (int, error) {
	if err := validatePair(as.numQubits, i, j); err != nil {
		return 0, err
	}
	if i > j {
		i, j = j, i
	}
	return as.index[i*as.numQubits+j], nil
}

// Pairs returns a copy of the action table.
func (as *ActionSpace) Pairs() [][2]int {
	return append([][2]int(nil), as.pairs...)
}
