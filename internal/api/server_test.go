package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpforum/internal/forum"
	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

type nopStore struct{}

func (nopStore) LoadAll(ctx context.Context) ([]*types.ForumRecord, error)  { return nil, nil }
func (nopStore) StoreForum(ctx context.Context, f *types.ForumRecord) error { return nil }
func (nopStore) StorePost(ctx context.Context, p *types.PostRecord) error   { return nil }
func (nopStore) UpdatePost(ctx context.Context, p *types.PostRecord) error  { return nil }
func (nopStore) StorePostContent(ctx context.Context, id string, n int64, body string) error {
	return nil
}
func (nopStore) LoadPostContent(ctx context.Context, id string, n int64) (string, error) {
	return "", interfaces.ErrContentNotFound
}
func (nopStore) HealthCheck(ctx context.Context) error { return nil }
func (nopStore) Close() error                          { return nil }

type failingHealth struct{}

func (failingHealth) HealthCheck(ctx context.Context) error {
	return errors.New("database unavailable")
}

// stubSessions issues predictable tokens and validates from a fixed table.
type stubSessions struct {
	identities map[string]*types.Identity
	issued     int
}

func newStubSessions() *stubSessions {
	return &stubSessions{identities: make(map[string]*types.Identity)}
}

func (s *stubSessions) Issue(ctx context.Context, userID, role string) (*types.Session, error) {
	if !types.IsValidUserID(userID) {
		return nil, types.ErrInvalidUserID
	}
	if !types.IsValidRole(role) {
		return nil, types.ErrInvalidRole
	}
	s.issued++
	token := fmt.Sprintf("token-%d", s.issued)
	s.identities[token] = &types.Identity{UserID: userID, Role: role}
	now := time.Now()
	return &types.Session{
		ID: token, UserID: userID, Role: role,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}, nil
}

func (s *stubSessions) Validate(sessionID string) (*types.Identity, error) {
	identity, ok := s.identities[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return identity, nil
}

func (s *stubSessions) grant(token, userID, role string) {
	s.identities[token] = &types.Identity{UserID: userID, Role: role}
}

func newTestServer(t *testing.T) (*Server, *stubSessions, *forum.Registry) {
	t.Helper()
	sessions := newStubSessions()
	registry := forum.NewRegistry(nopStore{})
	return NewServer(sessions, registry, nopStore{}), sessions, registry
}

func doJSON(t *testing.T, server *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("X-Session-ID", token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/login", "",
		map[string]string{"user_id": "alice", "role": "tutor"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Role      string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" || resp.Role != "tutor" {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/login", "",
		map[string]string{"user_id": "alice", "role": "professor"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", rec.Code)
	}
}

func TestCreateForum(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("tutor-token", "t1", types.RoleTutor)
	sessions.grant("student-token", "s1", types.RoleStudent)

	rec := doJSON(t, server, http.MethodPost, "/api/forums", "tutor-token",
		map[string]string{"title": "MATH 117"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if _, ok := registry.ForumByTitle("MATH 117"); !ok {
		t.Error("forum not created")
	}

	// Duplicate title.
	rec = doJSON(t, server, http.MethodPost, "/api/forums", "tutor-token",
		map[string]string{"title": "MATH 117"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", rec.Code)
	}

	// Students cannot create forums.
	rec = doJSON(t, server, http.MethodPost, "/api/forums", "student-token",
		map[string]string{"title": "CS 201"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("student create: status = %d, want 403", rec.Code)
	}

	// No session at all.
	rec = doJSON(t, server, http.MethodPost, "/api/forums", "",
		map[string]string{"title": "CS 201"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create: status = %d, want 401", rec.Code)
	}

	// Unknown token.
	rec = doJSON(t, server, http.MethodGet, "/api/forums", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: status = %d, want 401", rec.Code)
	}
}

func TestListForums(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("student-token", "s1", types.RoleStudent)

	target, _ := registry.CreateForum(context.Background(), "MATH 117")
	target.AddPost(context.Background(), nil, "s1", types.StateUnread)

	rec := doJSON(t, server, http.MethodGet, "/api/forums", "student-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Forums []struct {
			Title       string `json:"title"`
			TotalPosts  int    `json:"totalPosts"`
			TotalUnread int    `json:"totalUnread"`
		} `json:"forums"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Forums) != 1 || resp.Forums[0].TotalPosts != 1 || resp.Forums[0].TotalUnread != 1 {
		t.Errorf("unexpected listing %+v", resp.Forums)
	}
}

func TestCreatePost(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("student-token", "s1", types.RoleStudent)

	target, _ := registry.CreateForum(context.Background(), "MATH 117")
	path := "/api/forums/" + target.ID() + "/posts"

	body := "how do I factor x^2-1?"
	rec := doJSON(t, server, http.MethodPost, path, "student-token",
		map[string]interface{}{"body": body})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Forum      string `json:"forum"`
		PostNumber int64  `json:"postNumber"`
		Author     string `json:"author"`
		State      string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Forum != "MATH 117" || resp.PostNumber != 1 || resp.Author != "s1" || resp.State != "UNREAD" {
		t.Errorf("unexpected response %+v", resp)
	}

	// Reply threading via parent_number; unknown parent rejected.
	parent := int64(1)
	rec = doJSON(t, server, http.MethodPost, path, "student-token",
		map[string]interface{}{"parent_number": parent, "body": "same question"})
	if rec.Code != http.StatusCreated {
		t.Errorf("reply: status = %d, want 201: %s", rec.Code, rec.Body)
	}
	missing := int64(99)
	rec = doJSON(t, server, http.MethodPost, path, "student-token",
		map[string]interface{}{"parent_number": missing})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad parent: status = %d, want 400", rec.Code)
	}

	// Unknown forum ID.
	rec = doJSON(t, server, http.MethodPost, "/api/forums/no-such-id/posts", "student-token",
		map[string]interface{}{"body": "hello"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown forum: status = %d, want 404", rec.Code)
	}
}

func TestUpdatePost(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("tutor-token", "t1", types.RoleTutor)
	sessions.grant("student-token", "s1", types.RoleStudent)

	target, _ := registry.CreateForum(context.Background(), "MATH 117")
	post, _ := target.AddPost(context.Background(), nil, "s1", types.StateUnread)
	path := fmt.Sprintf("/api/forums/%s/posts/%d", target.ID(), post.Number())

	rec := doJSON(t, server, http.MethodPatch, path, "tutor-token",
		map[string]string{"state": "READ"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if post.State() != types.StateRead {
		t.Errorf("state = %v, want READ", post.State())
	}

	// Students cannot change post state.
	rec = doJSON(t, server, http.MethodPatch, path, "student-token",
		map[string]string{"state": "DELETED"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("student patch: status = %d, want 403", rec.Code)
	}

	// Delete then restore.
	doJSON(t, server, http.MethodPatch, path, "tutor-token", map[string]string{"state": "DELETED"})
	if post.State() != types.StateDeleted {
		t.Fatalf("state = %v, want DELETED", post.State())
	}
	rec = doJSON(t, server, http.MethodPatch, path, "tutor-token",
		map[string]string{"state": "UNDELETE"})
	if rec.Code != http.StatusOK {
		t.Fatalf("undelete: status = %d: %s", rec.Code, rec.Body)
	}
	if post.State() != types.StateRead {
		t.Errorf("state after undelete = %v, want READ", post.State())
	}

	rec = doJSON(t, server, http.MethodPatch, path, "tutor-token",
		map[string]string{"state": "ARCHIVED"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown state: status = %d, want 400", rec.Code)
	}
}

func TestGetPost(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("student-token", "s1", types.RoleStudent)

	target, _ := registry.CreateForum(context.Background(), "MATH 117")
	post, _ := target.AddPost(context.Background(), nil, "s1", types.StateUnread)
	post.SetContent(context.Background(), "question body")

	path := fmt.Sprintf("/api/forums/%s/posts/%d", target.ID(), post.Number())
	rec := doJSON(t, server, http.MethodGet, path, "student-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Body *string `json:"body"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Body == nil || *resp.Body != "question body" {
		t.Errorf("unexpected body %+v", resp.Body)
	}

	rec = doJSON(t, server, http.MethodGet,
		"/api/forums/"+target.ID()+"/posts/99", "student-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing post: status = %d, want 404", rec.Code)
	}
}

func TestCreatePostRateLimited(t *testing.T) {
	server, sessions, registry := newTestServer(t)
	sessions.grant("student-token", "s1", types.RoleStudent)

	target, _ := registry.CreateForum(context.Background(), "MATH 117")
	path := "/api/forums/" + target.ID() + "/posts"

	for i := 0; i < postsPerMinute; i++ {
		rec := doJSON(t, server, http.MethodPost, path, "student-token",
			map[string]interface{}{"body": "spam"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("post %d: status = %d: %s", i, rec.Code, rec.Body)
		}
	}

	rec := doJSON(t, server, http.MethodPost, path, "student-token",
		map[string]interface{}{"body": "one too many"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	sessions := newStubSessions()
	registry := forum.NewRegistry(nopStore{})
	unhealthy := NewServer(sessions, registry, failingHealth{})

	rec = doJSON(t, unhealthy, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < postsPerMinute; i++ {
		if !limiter.Allow("s1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Allow("s1") {
		t.Error("request over the limit should be denied")
	}
	// Other authors are unaffected.
	if !limiter.Allow("s2") {
		t.Error("second author should have a fresh window")
	}

	limiter.Cleanup()
	if len(limiter.clients) != 2 {
		t.Errorf("fresh windows should survive cleanup, have %d", len(limiter.clients))
	}

	limiter.clients["s1"].windowStart = time.Now().Add(-10 * time.Minute)
	limiter.Cleanup()
	if _, ok := limiter.clients["s1"]; ok {
		t.Error("stale window should be removed")
	}
}
