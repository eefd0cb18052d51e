package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/environment"
)

func TestSessionStore_CreateGetDelete(t *testing.T) {
	st := NewSessionStore(2, zerolog.Nop())

	s, err := st.Create(environment.Config{Qubits: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, st.Delete(s.ID))
	_, err = st.Get(s.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(st.Delete(s.ID), ErrSessionNotFound))
}

func TestSessionStore_Limit(t *testing.T) {
	st := NewSessionStore(1, zerolog.Nop())
	_, err := st.Create(environment.Config{Qubits: 4})
	require.NoError(t, err)

	_, err = st.Create(environment.Config{Qubits: 4})
	assert.True(t, errors.Is(err, ErrTooManySessions))
}

func TestSessionStore_InvalidConfig(t *testing.T) {
	st := NewSessionStore(0, zerolog.Nop())
	_, err := st.Create(environment.Config{Qubits: 1})
	assert.Error(t, err)
	assert.Equal(t, 0, st.Len())
}

func TestSessionStore_Expire(t *testing.T) {
	st := NewSessionStore(4, zerolog.Nop())
	idle, err := st.Create(environment.Config{Qubits: 4})
	require.NoError(t, err)
	fresh, err := st.Create(environment.Config{Qubits: 4})
	require.NoError(t, err)

	idle.lastUsed = time.Now().Add(-2 * time.Hour)
	assert.Equal(t, 1, st.Expire(time.Hour))

	_, err = st.Get(idle.ID)
	assert.Error(t, err)
	_, err = st.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestSession_DoTouches(t *testing.T) {
	st := NewSessionStore(1, zerolog.Nop())
	s, err := st.Create(environment.Config{Qubits: 4})
	require.NoError(t, err)
	s.lastUsed = time.Time{}

	require.NoError(t, s.Do(func(env *environment.Env) error {
		assert.Equal(t, 4, env.Config().Qubits)
		return nil
	}))
	assert.False(t, s.lastUsed.IsZero())
}
