package quantum

import "math/cmplx"

// PhaseNorm returns psi with its global phase fixed: the first amplitude with
// modulus above PhaseCutoff becomes real and positive. A state already in that
// form is returned as an unchanged copy, which makes the operation idempotent.
func PhaseNorm(psi []complex128) []complex128 {
	out := CloneState(psi)
	ref := -1
	for k, a := range out {
		if cmplx.Abs(a) > PhaseCutoff {
			ref = k
			break
		}
	}
	if ref < 0 {
		return out
	}
	a := out[ref]
	if imag(a) == 0 && real(a) > 0 {
		return out
	}
	phase := cmplx.Conj(a) / complex(cmplx.Abs(a), 0)
	for k := range out {
		out[k] *= phase
	}
	// Drop the rounding residue so a second pass is a no-op.
	out[ref] = complex(real(out[ref]), 0)
	return out
}
