package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	failGet  bool
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*types.Session)}
}

func (s *memSessionStore) CreateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memSessionStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("store unavailable")
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func (s *memSessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	return all, nil
}

func (s *memSessionStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var removed int64
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func TestManager_IssueAndValidate(t *testing.T) {
	store := newMemSessionStore()
	manager := NewManager(store, time.Hour)
	ctx := context.Background()

	session, err := manager.Issue(ctx, "alice", types.RoleTutor)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if session.ID == "" {
		t.Fatal("session token is empty")
	}

	identity, err := manager.Validate(session.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.UserID != "alice" || identity.Role != types.RoleTutor {
		t.Errorf("unexpected identity %+v", identity)
	}

	if _, ok := store.sessions[session.ID]; !ok {
		t.Error("session not persisted")
	}
}

func TestManager_IssueValidation(t *testing.T) {
	manager := NewManager(newMemSessionStore(), time.Hour)
	ctx := context.Background()

	if _, err := manager.Issue(ctx, "", types.RoleStudent); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := manager.Issue(ctx, "has spaces", types.RoleStudent); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := manager.Issue(ctx, "alice", "professor"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestManager_ValidateUnknownToken(t *testing.T) {
	manager := NewManager(newMemSessionStore(), time.Hour)

	if _, err := manager.Validate("no-such-token"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := manager.Validate(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
}

func TestManager_ValidateExpired(t *testing.T) {
	store := newMemSessionStore()
	manager := NewManager(store, -time.Minute) // issued already expired
	ctx := context.Background()

	session, err := manager.Issue(ctx, "alice", types.RoleStudent)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := manager.Validate(session.ID); !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}

	// Expired sessions are evicted from cache and store.
	if manager.ActiveCount() != 0 {
		t.Errorf("expired session still cached")
	}
	if _, ok := store.sessions[session.ID]; ok {
		t.Errorf("expired session still in store")
	}
}

func TestManager_ValidateFallsBackToStore(t *testing.T) {
	store := newMemSessionStore()
	now := time.Now()
	store.sessions["external"] = &types.Session{
		ID: "external", UserID: "bob", Role: types.RoleStudent,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}

	manager := NewManager(store, time.Hour)
	identity, err := manager.Validate("external")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.UserID != "bob" {
		t.Errorf("unexpected identity %+v", identity)
	}
	if manager.ActiveCount() != 1 {
		t.Errorf("store hit should populate the cache")
	}
}

func TestManager_LoadSessions(t *testing.T) {
	store := newMemSessionStore()
	now := time.Now()
	store.sessions["live"] = &types.Session{
		ID: "live", UserID: "alice", Role: types.RoleTutor,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	store.sessions["stale"] = &types.Session{
		ID: "stale", UserID: "bob", Role: types.RoleStudent,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}

	manager := NewManager(store, time.Hour)
	if err := manager.LoadSessions(context.Background()); err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if manager.ActiveCount() != 1 {
		t.Errorf("expected 1 cached session, got %d", manager.ActiveCount())
	}
	if _, err := manager.Validate("live"); err != nil {
		t.Errorf("live session should validate: %v", err)
	}
}

func TestManager_Revoke(t *testing.T) {
	store := newMemSessionStore()
	manager := NewManager(store, time.Hour)
	ctx := context.Background()

	session, _ := manager.Issue(ctx, "alice", types.RoleStudent)
	if err := manager.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := manager.Validate(session.ID); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("revoked session should not validate, got %v", err)
	}
}

func TestManager_SweepExpired(t *testing.T) {
	store := newMemSessionStore()
	now := time.Now()
	store.sessions["stale"] = &types.Session{
		ID: "stale", UserID: "bob", Role: types.RoleStudent,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}

	manager := NewManager(store, time.Hour)
	manager.mu.Lock()
	manager.sessions["stale"] = store.sessions["stale"]
	manager.mu.Unlock()

	live, _ := manager.Issue(context.Background(), "alice", types.RoleTutor)

	removed := manager.SweepExpired(context.Background())
	if removed != 1 {
		t.Errorf("swept %d sessions, want 1", removed)
	}
	if manager.ActiveCount() != 1 {
		t.Errorf("expected 1 session after sweep, got %d", manager.ActiveCount())
	}
	if _, err := manager.Validate(live.ID); err != nil {
		t.Errorf("live session should survive sweep: %v", err)
	}
	if _, ok := store.sessions["stale"]; ok {
		t.Error("expired session not removed from store")
	}
}
