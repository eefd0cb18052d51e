package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/quantum/handlers"
)

// SessionMonitor periodically drops idle sessions and logs when the live
// session count changes.
type SessionMonitor struct {
	sessions *handlers.SessionStore
	ttl      time.Duration
	log      zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	last     int
}

// NewSessionMonitor creates a new session monitor
func NewSessionMonitor(sessions *handlers.SessionStore, ttl time.Duration, log zerolog.Logger) *SessionMonitor {
	return &SessionMonitor{
		sessions: sessions,
		ttl:      ttl,
		log:      log.With().Str("component", "session_monitor").Logger(),
		stop:     make(chan struct{}),
	}
}

// Start begins periodic monitoring
func (m *SessionMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop ends monitoring. It is safe to call more than once.
func (m *SessionMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *SessionMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *SessionMonitor) check() {
	m.sessions.Expire(m.ttl)

	live := m.sessions.Len()
	if live != m.last {
		m.log.Info().Int("sessions", live).Int("previous", m.last).Msg("Live session count changed")
		m.last = live
	}
}
