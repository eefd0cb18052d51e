package handlers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/environment"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the store is full.
var ErrTooManySessions = errors.New("too many sessions")

// DefaultMaxSessions bounds the number of live environments.
const DefaultMaxSessions = 64

// Session is one environment owned by an API client. Env is not safe for
// concurrent use, so every access goes through Do.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	env      *environment.Env
	lastUsed time.Time
}

// Do runs fn with exclusive access to the session's environment.
func (s *Session) Do(fn func(env *environment.Env) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return fn(s.env)
}

// SessionStore keeps environments by id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	log      zerolog.Logger
}

// NewSessionStore creates a store holding at most max sessions.
func NewSessionStore(max int, log zerolog.Logger) *SessionStore {
	if max < 1 {
		max = DefaultMaxSessions
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		max:      max,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Create builds an environment from cfg and registers it.
func (st *SessionStore) Create(cfg environment.Config) (*Session, error) {
	env, err := environment.New(cfg, st.log)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sessions) >= st.max {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, st.max)
	}
	now := time.Now()
	s := &Session{ID: uuid.New().String(), CreatedAt: now, env: env, lastUsed: now}
	st.sessions[s.ID] = s

	st.log.Info().
		Str("session", s.ID).
		Int("qubits", env.Config().Qubits).
		Int("batch_size", env.Config().BatchSize).
		Msg("Session created")
	return s, nil
}

// Get returns the session with the given id.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Expire removes sessions idle for longer than ttl and returns how many were
// removed.
func (st *SessionStore) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		st.log.Info().Int("removed", removed).Msg("Expired idle sessions")
	}
	return removed
}
