package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

func TestObservationNames(t *testing.T) {
	assert.Equal(t, []string{"phase_norm", "rdm_2q_mean_real", "rdm_2q_real"}, ObservationNames())

	_, err := LookupObservation("rdm_3q")
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)
}

func TestObservationSize(t *testing.T) {
	env := newEnv(t, Config{Qubits: 5, Seed: 2})
	for _, name := range ObservationNames() {
		want, err := ObservationSize(name, 5)
		require.NoError(t, err)
		obs, err := env.Observe(name)
		require.NoError(t, err)
		assert.Len(t, obs[0], want, name)
	}

	_, err := env.Observe("unknown")
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)
}

func TestPhaseNormObservation(t *testing.T) {
	env := newEnv(t, Config{Qubits: 4, Seed: 3})
	obs, err := env.Observe(ObsPhaseNorm)
	require.NoError(t, err)

	psi := env.Simulator().State(0)
	assert.Greater(t, obs[0][0], 0.0)
	assert.Equal(t, 0.0, obs[0][16])
	for k, a := range psi {
		assert.InDelta(t, real(a), obs[0][k], 1e-15)
		assert.InDelta(t, imag(a), obs[0][16+k], 1e-15)
	}
}

func TestRDMObservation_BellBell(t *testing.T) {
	env := newEnv(t, Config{Qubits: 4})
	_, err := env.ResetWith([][]complex128{bellBell()})
	require.NoError(t, err)

	obs, err := env.Observe(ObsRDMReal)
	require.NoError(t, err)

	// Pair (0,1) is |Φ+><Φ+|.
	for _, k := range []int{0, 3, 12, 15} {
		assert.InDelta(t, 0.5, obs[0][k], 1e-12)
	}
	// Pair (0,2) is I/4.
	for k := 0; k < 16; k++ {
		want := 0.0
		if k%5 == 0 {
			want = 0.25
		}
		assert.InDelta(t, want, obs[0][32+k], 1e-12)
	}
}

func TestRDMMeanObservation_IsOrderSymmetric(t *testing.T) {
	env := newEnv(t, Config{Qubits: 4, Seed: 4})
	psi := env.Simulator().State(0)
	obs, err := env.Observe(ObsRDMMeanReal)
	require.NoError(t, err)

	fwd, err := quantum.PairRDM(psi, 4, 1, 3)
	require.NoError(t, err)
	rev, err := quantum.PairRDM(psi, 4, 3, 1)
	require.NoError(t, err)

	offset := 32 * 4 // action (1,3)
	for k := 0; k < 16; k++ {
		want := (fwd[k] + rev[k]) / 2
		assert.InDelta(t, real(want), obs[0][offset+k], 1e-12)
		assert.InDelta(t, imag(want), obs[0][offset+16+k], 1e-12)
	}
}
