package quantum

import (
	"math"
	"math/cmplx"
)

// Entropy returns the von Neumann entropy (natural log) of a pair RDM.
// The matrix is Hermitized first; negative and vanishing eigenvalues coming
// from rounding or noise are ignored, so the result is never NaN.
func Entropy(rdm Mat4) float64 {
	vals, _ := EigenHermitian(rdm)
	return entropyOf(vals[:])
}

func entropyOf(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		if v <= eigenFloor || math.IsNaN(v) {
			continue
		}
		s -= v * math.Log(v)
	}
	if s < 0 {
		return 0
	}
	return s
}

// QubitEntropy returns the von Neumann entropy of a 2x2 density matrix,
// using the closed-form eigenvalues.
func QubitEntropy(rho [4]complex128) float64 {
	a, d := real(rho[0]), real(rho[3])
	b := (rho[1] + cmplx.Conj(rho[2])) / 2
	mid := (a + d) / 2
	r := math.Hypot((a-d)/2, cmplx.Abs(b))
	return entropyOf([]float64{mid + r, mid - r})
}

// Entropies maps RDMs to entanglement scores, preserving order.
func Entropies(rdms []Mat4) []float64 {
	out := make([]float64, len(rdms))
	for k, r := range rdms {
		out[k] = Entropy(r)
	}
	return out
}

// PairEntropies returns one entanglement score per pair, in action order.
func PairEntropies(psi []complex128, numQubits int) ([]float64, error) {
	rdms, err := RDMs(psi, numQubits)
	if err != nil {
		return nil, err
	}
	return Entropies(rdms), nil
}

// QubitEntropies returns the entanglement entropy of every single qubit with
// the rest of the register.
func QubitEntropies(psi []complex128, numQubits int) ([]float64, error) {
	if err := ValidateState(psi, numQubits); err != nil {
		return nil, err
	}
	out := make([]float64, numQubits)
	for q := range out {
		out[q] = QubitEntropy(qubitRDM(psi, numQubits, q))
	}
	return out, nil
}

// IsDisentangled reports whether every score is below threshold.
func IsDisentangled(scores []float64, threshold float64) bool {
	for _, s := range scores {
		if !(s < threshold) {
			return false
		}
	}
	return true
}
