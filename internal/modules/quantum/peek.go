package quantum

// PeekResult is the outcome of a lookahead step.
type PeekResult struct {
	State         []complex128
	Entanglements []float64
	RDMs          []Mat4
}

// Peek applies the gate g (gate frame, both swaps included, as returned by
// GateMatrix) for the pair (i, j) without touching any simulator state. The
// gate is embedded as I⊗g⊗I on the pair's ring window and contracted with the
// window axes. The returned state is not phase normalized.
func Peek(psi []complex128, numQubits int, g Mat4, i, j int) (PeekResult, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return PeekResult{}, err
	}
	dec, err := DecideSwaps(numQubits, i, j)
	if err != nil {
		return PeekResult{}, err
	}
	next := applyOnAxes(psi, numQubits, embedWindow(g, dec), dec.Window)
	rdms := allRDMs(next, numQubits)
	return PeekResult{
		State:         next,
		Entanglements: Entropies(rdms),
		RDMs:          rdms,
	}, nil
}
