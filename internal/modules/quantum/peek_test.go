package quantum

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeek_MatchesCommittedStep(t *testing.T) {
	rng := newRNG(51)
	for _, l := range []int{3, 4, 5, 6} {
		sim, err := NewSimulator(l, 1, zerolog.Nop())
		require.NoError(t, err)
		as := sim.ActionSpace()
		for a := 0; a < as.NumActions(); a++ {
			sim.SetRandomStates(rng)
			psi := sim.State(0)
			i, j, _ := as.Decode(a)
			rho, err := PairRDM(psi, l, i, j)
			require.NoError(t, err)
			dec, err := DecideSwaps(l, i, j)
			require.NoError(t, err)

			peek, err := Peek(psi, l, GateMatrix(DisentanglingUnitary(rho), dec), i, j)
			require.NoError(t, err)
			require.NoError(t, sim.Apply([]int{a}))

			assert.InDelta(t, 1.0, Fidelity(peek.State, sim.State(0)), DefaultFidelityTolerance)
			assert.InDeltaSlice(t, sim.Entanglements()[0], peek.Entanglements, DefaultEntropyTolerance)
			require.Len(t, peek.RDMs, as.NumActions())
		}
	}
}

func TestPeek_DoesNotMutateInput(t *testing.T) {
	psi := RandomState(4, newRNG(52))
	before := CloneState(psi)
	_, err := Peek(psi, 4, SwapGate(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, before, psi)
}

func TestPeek_Invalid(t *testing.T) {
	_, err := Peek(BasisState(4, 0), 4, Identity4(), 1, 1)
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = Peek(make([]complex128, 16), 4, Identity4(), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
}
