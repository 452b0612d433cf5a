package session

import (
	"fmt"
	"sync"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"

	"github.com/google/uuid"
)

type Config struct {
	Window int
	TTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 4
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	return c
}

// Manager holds in-memory conversation sessions. Sessions are fully
// independent; expiry is lazy, swept on access rather than by a background
// goroutine.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*models.Session
	now      func() time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: map[string]*models.Session{},
		now:      time.Now,
	}
}

// StartSession creates a fresh session and returns its id.
func (m *Manager) StartSession() string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &models.Session{SessionID: id, LastSeen: m.now()}
	return id
}

// Touch returns the session id, creating a session when the given id is
// empty or refers to an expired session. Queries never fail because a
// session aged out; they just lose the old context.
func (m *Manager) Touch(sessionID string) string {
	if sessionID == "" {
		return m.StartSession()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &models.Session{SessionID: sessionID}
		m.sessions[sessionID] = s
	}
	s.LastSeen = m.now()
	return sessionID
}

// AppendTurn records a completed query/answer pair on the session.
func (m *Manager) AppendTurn(sessionID string, turn models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, util.ErrSessionNotFound)
	}
	s.Turns = append(s.Turns, turn)
	s.LastSeen = m.now()
	return nil
}

// RecentTurns returns up to n most recent turns, oldest first. An unknown or
// expired session yields an empty window, not an error.
func (m *Manager) RecentTurns(sessionID string, n int) []models.Turn {
	if n <= 0 {
		n = m.cfg.Window
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || m.expired(s) {
		return nil
	}
	turns := s.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

// Window is the configured conversation window size.
func (m *Manager) Window() int { return m.cfg.Window }

// Len reports the number of live sessions, for observability.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if !m.expired(s) {
			n++
		}
	}
	return n
}

func (m *Manager) expired(s *models.Session) bool {
	return m.now().Sub(s.LastSeen) > m.cfg.TTL
}

func (m *Manager) sweepLocked() {
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
		}
	}
}
