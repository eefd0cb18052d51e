package quantum

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateState(t *testing.T) {
	tests := []struct {
		name    string
		psi     []complex128
		qubits  int
		wantErr error
	}{
		{"valid", BasisState(3, 5), 3, nil},
		{"wrong length", make([]complex128, 4), 3, ErrInvalidState},
		{"zero vector", make([]complex128, 8), 3, ErrInvalidState},
		{"too few qubits", BellPair(), 2, ErrUnsupportedConfiguration},
		{"too many qubits", nil, MaxQubits + 1, ErrUnsupportedConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateState(tt.psi, tt.qubits)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQubitsFor(t *testing.T) {
	l, err := QubitsFor(make([]complex128, 32))
	require.NoError(t, err)
	assert.Equal(t, 5, l)

	_, err = QubitsFor(make([]complex128, 12))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRandomState_UnitNormAndSeeded(t *testing.T) {
	a := RandomState(5, newRNG(42))
	b := RandomState(5, newRNG(42))
	c := RandomState(5, newRNG(43))

	assert.Len(t, a, 32)
	assert.InDelta(t, 1.0, Norm(a), 1e-12)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNormalize(t *testing.T) {
	psi := []complex128{3, 4i, 0, 0, 0, 0, 0, 0}
	out, err := Normalize(psi)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Norm(out), 1e-15)
	assert.Equal(t, complex128(3), psi[0], "input must not be modified")

	_, err = Normalize(make([]complex128, 8))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFidelity_IgnoresGlobalPhase(t *testing.T) {
	psi := RandomState(4, newRNG(1))
	rotated := CloneState(psi)
	phase := cmplx.Exp(0.7i)
	for k := range rotated {
		rotated[k] *= phase
	}

	assert.InDelta(t, 1.0, Fidelity(psi, rotated), 1e-12)
	assert.InDelta(t, 0.0, Fidelity(BasisState(3, 0), BasisState(3, 1)), 1e-15)
	assert.Equal(t, 0.0, Fidelity(BasisState(3, 0), BasisState(4, 0)))
}

func TestKron_BellBell(t *testing.T) {
	psi := bellBell()
	require.Len(t, psi, 16)
	// |0000>, |0011>, |1100>, |1111> each with amplitude 1/2.
	for _, s := range []int{0, 3, 12, 15} {
		assert.InDelta(t, 0.5, real(psi[s]), 1e-15)
	}
	assert.InDelta(t, 1.0, Norm(psi), 1e-15)
}

func TestTransposeQubits(t *testing.T) {
	// |0>|1>|1> -> relabel so axis 0 reads old axis 2.
	psi := BasisState(3, 0b011)
	out, err := TransposeQubits(psi, 3, []int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, complex128(1), out[0b101])

	_, err = TransposeQubits(psi, 3, []int{0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTransposeQubits_PreservesPairRDMs(t *testing.T) {
	psi := RandomState(4, newRNG(9))
	perm := []int{3, 1, 0, 2}
	out, err := TransposeQubits(psi, 4, perm)
	require.NoError(t, err)

	for a := 0; a < 4; a++ {
		for b := a + 1; b < 4; b++ {
			want, err := PairRDM(psi, 4, perm[a], perm[b])
			require.NoError(t, err)
			got, err := PairRDM(out, 4, a, b)
			require.NoError(t, err)
			assert.True(t, got.Equal(want, 1e-12), "pair (%d,%d)", a, b)
		}
	}
	assert.InDelta(t, 1.0, Norm(out), 1e-12)
}
