package quantum

import (
	"math/cmplx"
	"math/rand/v2"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// denseApply applies g on axes (a, b) by summing over the full basis.
func denseApply(psi []complex128, numQubits int, g Mat4, a, b int) []complex128 {
	out := make([]complex128, len(psi))
	mask := 1<<(numQubits-1-a) | 1<<(numQubits-1-b)
	for s := range psi {
		row := 2*bitOf(s, a, numQubits) + bitOf(s, b, numQubits)
		for t := range psi {
			if s&^mask != t&^mask {
				continue
			}
			col := 2*bitOf(t, a, numQubits) + bitOf(t, b, numQubits)
			out[s] += g[4*row+col] * psi[t]
		}
	}
	return out
}

// loopRDM builds the pair RDM from explicit sums.
func loopRDM(psi []complex128, numQubits, i, j int) Mat4 {
	var rho Mat4
	mask := 1<<(numQubits-1-i) | 1<<(numQubits-1-j)
	for s := range psi {
		r := 2*bitOf(s, i, numQubits) + bitOf(s, j, numQubits)
		for t := range psi {
			if s&^mask != t&^mask {
				continue
			}
			c := 2*bitOf(t, i, numQubits) + bitOf(t, j, numQubits)
			rho[4*r+c] += psi[s] * cmplx.Conj(psi[t])
		}
	}
	return rho
}

func maxDiff(a, b []complex128) float64 {
	worst := 0.0
	for k := range a {
		if d := cmplx.Abs(a[k] - b[k]); d > worst {
			worst = d
		}
	}
	return worst
}

func bellBell() []complex128 {
	return Kron(BellPair(), BellPair())
}
