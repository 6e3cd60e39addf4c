package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"helpforum/internal/forum"
	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

// SessionService is the slice of the session manager the API needs.
type SessionService interface {
	Issue(ctx context.Context, userID, role string) (*types.Session, error)
	Validate(sessionID string) (*types.Identity, error)
}

// HealthChecker reports storage availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP surface for authoring: login, forum administration and
// post creation. It holds no business logic beyond request validation.
type Server struct {
	sessions SessionService
	registry *forum.Registry
	health   HealthChecker
	limiter  *RateLimiter
	router   *http.ServeMux
}

func NewServer(sessions SessionService, registry *forum.Registry, health HealthChecker) *Server {
	s := &Server{
		sessions: sessions,
		registry: registry,
		health:   health,
		limiter:  NewRateLimiter(),
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/login", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLogin))))
	s.router.Handle("/api/forums", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleForums))))
	s.router.Handle("/api/forums/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleForumSubtree))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Limiter exposes the rate limiter for periodic cleanup.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type createForumRequest struct {
	Title string `json:"title"`
}

type forumResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	TotalPosts  int       `json:"totalPosts"`
	TotalUnread int       `json:"totalUnread"`
}

type createPostRequest struct {
	ParentNumber *int64  `json:"parent_number"`
	Body         *string `json:"body"`
}

type updatePostRequest struct {
	State string `json:"state"`
}

type postResponse struct {
	Forum        string    `json:"forum"`
	PostNumber   int64     `json:"postNumber"`
	ParentNumber *int64    `json:"parentNumber,omitempty"`
	Author       string    `json:"author"`
	State        string    `json:"state"`
	PostedAt     time.Time `json:"postedAt"`
	Body         *string   `json:"body,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.Issue(r.Context(), req.UserID, req.Role)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loginResponse{
		SessionID: session.ID,
		UserID:    session.UserID,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) handleForums(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listForums(w, r)
	case http.MethodPost:
		s.createForum(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listForums(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	forums := s.registry.Forums()
	out := make([]forumResponse, len(forums))
	for i, f := range forums {
		summary := f.Summary()
		out[i] = forumResponse{
			ID:          f.ID(),
			Title:       f.Title(),
			CreatedAt:   f.CreatedAt(),
			TotalPosts:  summary.TotalPosts,
			TotalUnread: summary.TotalUnread,
		}
	}
	json.NewEncoder(w).Encode(map[string][]forumResponse{"forums": out})
}

func (s *Server) createForum(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !identity.CanObserveForums() {
		s.sendError(w, "Tutor role required", http.StatusForbidden)
		return
	}

	var req createForumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.registry.CreateForum(r.Context(), req.Title)
	switch {
	case err == nil:
	case errors.Is(err, forum.ErrDuplicateForumTitle):
		s.sendError(w, "A forum with that title already exists", http.StatusConflict)
		return
	case errors.Is(err, types.ErrInvalidForumTitle):
		s.sendError(w, "Invalid forum title", http.StatusBadRequest)
		return
	default:
		s.sendError(w, "Failed to create forum", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(forumResponse{
		ID:        created.ID(),
		Title:     created.Title(),
		CreatedAt: created.CreatedAt(),
	})
}

// handleForumSubtree routes /api/forums/{id}/posts and
// /api/forums/{id}/posts/{n}.
func (s *Server) handleForumSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/forums/")
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) < 2 || segments[0] == "" || segments[1] != "posts" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}

	target, ok := s.registry.ForumByID(segments[0])
	if !ok {
		s.sendError(w, "Forum not found", http.StatusNotFound)
		return
	}

	switch len(segments) {
	case 2:
		if r.Method != http.MethodPost {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.createPost(w, r, target)
	case 3:
		number, err := strconv.ParseInt(segments[2], 10, 64)
		if err != nil {
			s.sendError(w, "Invalid post number", http.StatusBadRequest)
			return
		}
		post := target.PostByNumber(number)
		if post == nil {
			s.sendError(w, "Post not found", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.getPost(w, r, target, post)
		case http.MethodPatch:
			s.updatePost(w, r, post)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, target *forum.Forum) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	if !s.limiter.Allow(identity.UserID) {
		s.sendError(w, "Too many posts, slow down", http.StatusTooManyRequests)
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	post, err := target.AddPost(r.Context(), req.ParentNumber, identity.UserID, types.StateUnread)
	switch {
	case err == nil:
	case errors.Is(err, forum.ErrParentNotFound):
		s.sendError(w, "Parent post not found", http.StatusBadRequest)
		return
	case errors.Is(err, types.ErrInvalidUserID):
		s.sendError(w, "Invalid author", http.StatusBadRequest)
		return
	default:
		s.sendError(w, "Failed to create post", http.StatusInternalServerError)
		return
	}

	// A missing body is stored as empty content.
	body := ""
	if req.Body != nil {
		body = *req.Body
	}
	if err := post.SetContent(r.Context(), body); err != nil {
		s.sendError(w, "Failed to store post content", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(postResponse{
		Forum:        target.Title(),
		PostNumber:   post.Number(),
		ParentNumber: post.ParentNumber(),
		Author:       post.Author(),
		State:        post.State().String(),
		PostedAt:     post.WhenPosted(),
	})
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request, post *forum.Post) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !identity.CanObserveForums() {
		s.sendError(w, "Tutor role required", http.StatusForbidden)
		return
	}

	var req updatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if strings.EqualFold(req.State, "UNDELETE") {
		if err := post.Undelete(r.Context()); err != nil {
			s.sendError(w, "Failed to restore post", http.StatusInternalServerError)
			return
		}
	} else {
		state, err := types.ParsePostState(req.State)
		if err != nil {
			s.sendError(w, "Unknown post state", http.StatusBadRequest)
			return
		}
		if err := post.SetState(r.Context(), state); err != nil {
			s.sendError(w, "Failed to update post", http.StatusInternalServerError)
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{"state": post.State().String()})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request, target *forum.Forum, post *forum.Post) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	body, err := post.Content(r.Context())
	if err != nil {
		s.sendError(w, "Failed to load post content", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(postResponse{
		Forum:        target.Title(),
		PostNumber:   post.Number(),
		ParentNumber: post.ParentNumber(),
		Author:       post.Author(),
		State:        post.State().String(),
		PostedAt:     post.WhenPosted(),
		Body:         &body,
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now(),
		"forums":    len(s.registry.Forums()),
		"listeners": s.registry.ListenerCount(),
	})
}

// authenticate resolves the X-Session-ID header to an identity, writing the
// error response itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*types.Identity, bool) {
	token := r.Header.Get("X-Session-ID")
	if token == "" {
		s.sendError(w, "Session required", http.StatusUnauthorized)
		return nil, false
	}

	identity, err := s.sessions.Validate(token)
	switch {
	case err == nil:
		return identity, true
	case errors.Is(err, interfaces.ErrSessionExpired):
		s.sendError(w, "Session expired", http.StatusUnauthorized)
		return nil, false
	default:
		s.sendError(w, "Invalid session", http.StatusUnauthorized)
		return nil, false
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
