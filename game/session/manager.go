package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/connectn/game/engine"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionFull          = errors.New("session is full")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrWrongPhase           = errors.New("operation not valid in current phase")
	ErrNotReady             = errors.New("not every participant is ready")
)

// Manager is the registry of live sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates an empty session registry
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session in the creation phase. An empty id gets a
// generated one.
func (m *Manager) Create(id string, variant engine.Variant) (*Session, error) {
	if err := engine.ValidateVariant(&variant); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	} else if _, exists := m.sessions[id]; exists {
		return nil, ErrSessionAlreadyExists
	}

	session := newSession(id, variant, time.Now())
	m.sessions[id] = session
	return session, nil
}

// Get retrieves a session by id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns all sessions, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete evicts a session from the registry. Connections that looked the
// session up before the eviction can no longer join it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	session.remove()
	return nil
}

// CleanupExpiredSessions evicts sessions nobody is connected to that have
// been idle longer than maxIdle
func (m *Manager) CleanupExpiredSessions(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0

	for id, session := range m.sessions {
		if session.removeIfIdle(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID returns a random 12-character hex id not yet in use.
// Callers hold m.mu.
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 6)
	for {
		rand.Read(bytes)
		id := hex.EncodeToString(bytes)
		if _, exists := m.sessions[id]; !exists {
			return id
		}
	}
}
