package quantum

// SwapDecision is the routing of a gate on the pair (I, J).
//
// Qubits sit on a ring 0..L-1. The gate is applied in a window
// [c0, First, Second, c1] with the pair in the middle positions, First being the
// qubit from which the shorter forward arc reaches the other (ties go to the
// smaller index). Preswap is set when the natural order (I, J) has to be
// exchanged into (First, Second). Postswap is set when the pair is not adjacent
// in axis order; its outputs then come back exchanged.
type SwapDecision struct {
	I, J          int
	First, Second int
	Preswap       bool
	Postswap      bool
	Window        []int
}

// DecideSwaps returns the swap decision for a gate on (i, j). It depends on
// L, i and j only.
func DecideSwaps(numQubits, i, j int) (SwapDecision, error) {
	if err := ValidateQubits(numQubits); err != nil {
		return SwapDecision{}, err
	}
	if err := validatePair(numQubits, i, j); err != nil {
		return SwapDecision{}, err
	}
	return decideSwaps(numQubits, i, j), nil
}

func decideSwaps(numQubits, i, j int) SwapDecision {
	first, second := i, j
	fwd, back := ringDistance(numQubits, i, j), ringDistance(numQubits, j, i)
	if back < fwd || (back == fwd && j < i) {
		first, second = j, i
	}
	gap := i - j
	if gap < 0 {
		gap = -gap
	}
	return SwapDecision{
		I:        i,
		J:        j,
		First:    first,
		Second:   second,
		Preswap:  first != i,
		Postswap: gap > 1,
		Window:   ringWindow(numQubits, first, second),
	}
}

// ringDistance is the forward distance from a to b on the ring.
func ringDistance(numQubits, a, b int) int {
	return ((b-a)%numQubits + numQubits) % numQubits
}

// ringWindow returns [c0, first, second, c1], dropping context qubits the
// register does not have.
func ringWindow(numQubits, first, second int) []int {
	window := make([]int, 0, 4)
	c0 := -1
	for step := 1; step < numQubits; step++ {
		q := ((first-step)%numQubits + numQubits) % numQubits
		if q != second {
			c0 = q
			break
		}
	}
	if c0 >= 0 {
		window = append(window, c0)
	}
	window = append(window, first, second)
	for step := 1; step < numQubits; step++ {
		q := (second + step) % numQubits
		if q != first && q != c0 {
			window = append(window, q)
			break
		}
	}
	return window
}

// CanonicalWindow returns the window axes of a gate on (i, j).
func CanonicalWindow(numQubits, i, j int) ([]int, error) {
	dec, err := DecideSwaps(numQubits, i, j)
	if err != nil {
		return nil, err
	}
	return dec.Window, nil
}

// Positions returns the window positions of First and Second.
func (d SwapDecision) Positions() (int, int) {
	for k, q := range d.Window {
		if q == d.First {
			return k, k + 1
		}
	}
	return 0, 1
}
