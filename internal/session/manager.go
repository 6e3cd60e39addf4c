package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

// Manager issues and validates session tokens. Validation is served from an
// in-memory cache; the store is the durable record that survives restarts.
type Manager struct {
	store interfaces.SessionStore
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// NewManager creates a session manager backed by the given store. Sessions
// expire ttl after issuance.
func NewManager(store interfaces.SessionStore, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		ttl:      ttl,
		sessions: make(map[string]*types.Session),
	}
}

// LoadSessions warms the cache from the store, skipping sessions that
// expired while the server was down.
func (m *Manager) LoadSessions(ctx context.Context) error {
	stored, err := m.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	now := time.Now()
	loaded := 0

	m.mu.Lock()
	for _, session := range stored {
		if session.Expired(now) {
			continue
		}
		m.sessions[session.ID] = session
		loaded++
	}
	m.mu.Unlock()

	log.Printf("Loaded %d active sessions from database", loaded)
	return nil
}

// Issue creates a session for the given user and returns its token.
func (m *Manager) Issue(ctx context.Context, userID, role string) (*types.Session, error) {
	if !types.IsValidUserID(userID) {
		return nil, ErrInvalidUserID
	}
	if !types.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	now := time.Now()
	session := &types.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session, nil
}

// Validate resolves a token to the identity it was issued for. Expired
// sessions are evicted and reported as ErrSessionExpired.
func (m *Manager) Validate(sessionID string) (*types.Identity, error) {
	if sessionID == "" {
		return nil, ErrEmptyToken
	}

	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		// Cache miss: another instance may have issued it, or the cache
		// was warmed before this session was created.
		stored, err := m.store.GetSession(context.Background(), sessionID)
		if err != nil {
			return nil, interfaces.ErrSessionNotFound
		}
		m.mu.Lock()
		m.sessions[stored.ID] = stored
		m.mu.Unlock()
		session = stored
	}

	if session.Expired(time.Now()) {
		m.evict(session.ID)
		return nil, interfaces.ErrSessionExpired
	}

	return &types.Identity{UserID: session.UserID, Role: session.Role}, nil
}

// Revoke removes a session from the cache and the store.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SweepExpired drops expired sessions from the cache and the store.
// Returns the number of cache entries removed.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := time.Now()

	m.mu.Lock()
	removed := 0
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if n, err := m.store.DeleteExpiredSessions(ctx); err != nil {
		log.Printf("Failed to sweep expired sessions from store: %v", err)
	} else if n > 0 {
		log.Printf("Swept %d expired sessions from store", n)
	}

	return removed
}

// ActiveCount reports the number of cached sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.store.DeleteSession(context.Background(), sessionID); err != nil {
		log.Printf("Failed to delete expired session %s: %v", sessionID, err)
	}
}
