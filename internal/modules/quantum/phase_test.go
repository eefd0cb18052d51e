package quantum

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseNorm_Idempotent(t *testing.T) {
	rng := newRNG(61)
	for trial := 0; trial < 25; trial++ {
		psi := RandomState(4, rng)
		once := PhaseNorm(psi)
		twice := PhaseNorm(once)
		assert.Equal(t, once, twice)

		ref := once[0]
		assert.Equal(t, 0.0, imag(ref))
		assert.Greater(t, real(ref), 0.0)
		assert.InDelta(t, Norm(psi), Norm(once), 1e-14)
		assert.InDelta(t, 1.0, Fidelity(psi, once), 1e-12)
	}
}

func TestPhaseNorm_PreservesEntanglement(t *testing.T) {
	psi := RandomState(5, newRNG(62))
	before, err := PairEntropies(psi, 5)
	require.NoError(t, err)
	after, err := PairEntropies(PhaseNorm(psi), 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, before, after, 1e-12)
}

func TestPhaseNorm_SkipsTinyAmplitudes(t *testing.T) {
	psi := BasisState(3, 5)
	psi[0] = 1e-9i
	psi[5] = cmplx.Exp(1.3i)

	out := PhaseNorm(psi)

	assert.InDelta(t, 1.0, real(out[5]), 1e-15)
	assert.Equal(t, 0.0, imag(out[5]))
	assert.InDelta(t, 1e-9, cmplx.Abs(out[0]), 1e-20)
}

func TestPhaseNorm_ZeroVector(t *testing.T) {
	psi := make([]complex128, 8)
	assert.Equal(t, psi, PhaseNorm(psi))
}
