package types

import (
	"time"
)

// Roles recognized by the session authority. A tutor can observe live forum
// state over the notification gateway; a student can only author posts.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// PostState is the lifecycle state of a single post. Any state may
// transition to any other state; the set is flat, not a DAG.
type PostState int

const (
	StateUnread PostState = iota
	StateRead
	StateStarred
	StateDeleted
)

// Valid reports whether s is one of the four defined states.
func (s PostState) Valid() bool {
	return s >= StateUnread && s <= StateDeleted
}

func (s PostState) String() string {
	switch s {
	case StateUnread:
		return "UNREAD"
	case StateRead:
		return "READ"
	case StateStarred:
		return "STARRED"
	case StateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// ParsePostState converts the wire representation back to a PostState.
func ParsePostState(s string) (PostState, error) {
	switch s {
	case "UNREAD":
		return StateUnread, nil
	case "READ":
		return StateRead, nil
	case "STARRED":
		return StateStarred, nil
	case "DELETED":
		return StateDeleted, nil
	default:
		return 0, ErrInvalidState
	}
}

// Session is an issued authentication token with a bounded lifetime.
// Immutable after creation; expiry is derived from ExpiresAt rather than
// tracked in a mutable status field.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Identity is the authenticated principal returned by session validation.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// CanObserveForums reports whether the identity holds at least the tutor
// capability required to register as a forum listener.
func (id *Identity) CanObserveForums() bool {
	return id.Role == RoleTutor
}

// ForumRecord is the persisted form of a forum and its post metadata,
// returned by the store's LoadAll at startup. Post bodies are not included;
// content loads lazily through the store.
type ForumRecord struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	Posts     []*PostRecord `json:"posts,omitempty"`
}

// PostRecord is the persisted metadata of one post. Number is assigned by
// the owning forum, strictly increasing from 1 and never reused.
type PostRecord struct {
	ForumID      string    `json:"forum_id"`
	Number       int64     `json:"number"`
	ParentNumber *int64    `json:"parent_number,omitempty"`
	Author       string    `json:"author"`
	State        PostState `json:"state"`
	PostedAt     time.Time `json:"posted_at"`
}
