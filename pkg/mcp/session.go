package mcp

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager owns all live sessions. It enforces the session cap
// by evicting the least-recently-used unprotected session, expires
// idle sessions on a creation-count cadence, and tells an eviction
// callback when per-session state elsewhere must be released.
type SessionManager struct {
	mu sync.Mutex

	sessions map[string]*Session
	// protected counts in-flight requests per session. A session with
	// a nonzero count is never evicted by the cap.
	protected map[string]int

	maxSessions     int
	maxAge          time.Duration
	cleanupInterval int
	creations       int

	onEvict func(sessionID string)

	now func() time.Time
}

// NewSessionManager creates a session manager with the given policies.
// Zero values fall back to the defaults: 1000 sessions, 1 hour expiry,
// cleanup every 100 creations.
func NewSessionManager(maxSessions int, maxAge time.Duration, cleanupInterval int) *SessionManager {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 100
	}
	return &SessionManager{
		sessions:        map[string]*Session{},
		protected:       map[string]int{},
		maxSessions:     maxSessions,
		maxAge:          maxAge,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// OnEvict registers a callback invoked (outside the lock) with the id
// of every session removed by expiry, cap eviction, or termination.
func (m *SessionManager) OnEvict(fn func(sessionID string)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// Create registers a new session and returns its id: a UUIDv4 in hex
// with dashes stripped, 32 characters.
func (m *SessionManager) Create(clientInfo map[string]interface{}, protocolVersion string, clientCaps map[string]interface{}) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := m.now()
	session := &Session{
		ID:                 id,
		ClientInfo:         clientInfo,
		ProtocolVersion:    protocolVersion,
		ClientCapabilities: clientCaps,
		CreatedAt:          now,
		LastActivity:       now,
		Subscriptions:      map[string]struct{}{},
	}

	m.mu.Lock()
	m.creations++
	var evicted []string
	if m.creations%m.cleanupInterval == 0 {
		evicted = append(evicted, m.removeExpiredLocked(m.maxAge)...)
	}
	if len(m.sessions) >= m.maxSessions {
		if victim := m.oldestUnprotectedLocked(); victim != "" {
			delete(m.sessions, victim)
			evicted = append(evicted, victim)
		}
	}
	m.sessions[id] = session
	onEvict := m.onEvict
	m.mu.Unlock()

	if onEvict != nil {
		for _, sid := range evicted {
			onEvict(sid)
		}
	}
	return id
}

// Get returns the session for id, or nil when unknown.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Touch refreshes the session's activity timestamp.
func (m *SessionManager) Touch(id string) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = m.now()
	}
	m.mu.Unlock()
}

// Protect marks the session as having one more in-flight request.
func (m *SessionManager) Protect(id string) {
	m.mu.Lock()
	m.protected[id]++
	m.mu.Unlock()
}

// Unprotect releases one in-flight request on the session.
func (m *SessionManager) Unprotect(id string) {
	m.mu.Lock()
	if n := m.protected[id]; n <= 1 {
		delete(m.protected, id)
	} else {
		m.protected[id] = n - 1
	}
	m.mu.Unlock()
}

// Subscribe records a resource subscription on the session.
func (m *SessionManager) Subscribe(id, uri string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.Subscriptions[uri] = struct{}{}
	return true
}

// Unsubscribe drops a resource subscription from the session.
func (m *SessionManager) Unsubscribe(id, uri string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(s.Subscriptions, uri)
	return true
}

// Terminate removes the session explicitly (HTTP DELETE).
func (m *SessionManager) Terminate(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.protected, id)
	}
	onEvict := m.onEvict
	m.mu.Unlock()

	if ok && onEvict != nil {
		onEvict(id)
	}
	return ok
}

// CleanupExpired removes sessions idle longer than maxAge and returns
// how many were removed.
func (m *SessionManager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	evicted := m.removeExpiredLocked(maxAge)
	onEvict := m.onEvict
	m.mu.Unlock()

	if onEvict != nil {
		for _, sid := range evicted {
			onEvict(sid)
		}
	}
	return len(evicted)
}

// Count reports the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) removeExpiredLocked(maxAge time.Duration) []string {
	cutoff := m.now().Add(-maxAge)
	var evicted []string
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.protected, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (m *SessionManager) oldestUnprotectedLocked() string {
	victim := ""
	var oldest time.Time
	for id, s := range m.sessions {
		if m.protected[id] > 0 {
			continue
		}
		if victim == "" || s.LastActivity.Before(oldest) {
			victim = id
			oldest = s.LastActivity
		}
	}
	return victim
}
