package policy

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

func rdmsOf(t *testing.T, psi []complex128, numQubits int) []quantum.Mat4 {
	t.Helper()
	rdms, err := quantum.RDMs(psi, numQubits)
	require.NoError(t, err)
	return rdms
}

func TestGain(t *testing.T) {
	bell := quantum.Kron(quantum.BellPair(), quantum.BellPair())
	rdms := rdmsOf(t, bell, 4)

	assert.InDelta(t, 2*math.Log(2), Gain(rdms[0]), 1e-10, "Bell pair")
	assert.InDelta(t, 0.0, Gain(rdms[1]), 1e-10, "maximally mixed pair")

	product := rdmsOf(t, quantum.BasisState(4, 0b0110), 4)
	for _, rho := range product {
		assert.InDelta(t, 0.0, Gain(rho), 1e-10)
	}
}

func TestGreedy_PicksBellPairs(t *testing.T) {
	g, err := NewGreedy(4)
	require.NoError(t, err)

	// Qubits (1,3) and (0,2) hold the Bell pairs.
	psi, err := quantum.TransposeQubits(quantum.Kron(quantum.BellPair(), quantum.BellPair()), 4, []int{0, 2, 1, 3})
	require.NoError(t, err)

	a, err := g.SelectAction(rdmsOf(t, psi, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, a, "(0,2) wins the tie against (1,3)")
}

func TestGreedy_TiesGoToLowestIndex(t *testing.T) {
	g, err := NewGreedy(4)
	require.NoError(t, err)
	a, err := g.SelectAction(rdmsOf(t, quantum.BasisState(4, 0), 4))
	require.NoError(t, err)
	assert.Equal(t, 0, a)
}

func TestGreedy_WrongRDMCount(t *testing.T) {
	g, err := NewGreedy(5)
	require.NoError(t, err)
	_, err = g.SelectAction(make([]quantum.Mat4, 6))
	assert.ErrorIs(t, err, quantum.ErrInvalidState)
}

func TestRandom_SeededAndInRange(t *testing.T) {
	a, err := NewRandom(5, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	b, err := NewRandom(5, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	rdms := make([]quantum.Mat4, 10)
	for k := 0; k < 50; k++ {
		x, err := a.SelectAction(rdms)
		require.NoError(t, err)
		y, err := b.SelectAction(rdms)
		require.NoError(t, err)
		assert.Equal(t, x, y)
		assert.GreaterOrEqual(t, x, 0)
		assert.Less(t, x, 10)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(rand.New(rand.NewPCG(3, 4)))

	assert.Equal(t, []string{Greedy, Random}, r.Names())
	assert.Equal(t, []int{4, 5, 6}, r.Qubits(Greedy))

	p, err := r.Lookup(Greedy, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, p.NumQubits())

	_, err = r.Lookup(Greedy, 7)
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)
	assert.Contains(t, err.Error(), "no policy available for 7 qubits")

	_, err = r.Lookup("transformer", 4)
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)

	assert.NoError(t, r.Validate(Random, 4))
	assert.Error(t, r.Validate(Random, 3))

	g3, err := NewGreedy(3)
	require.NoError(t, err)
	r.Register(g3)
	assert.NoError(t, r.Validate(Greedy, 3))
}
