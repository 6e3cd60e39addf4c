package interfaces

import (
	"context"

	"helpforum/pkg/types"
)

// PersistenceClient is the contract the forum core holds against durable
// storage. Post metadata and post content are stored separately: metadata is
// loaded eagerly at startup through LoadAll, content only on first read.
type PersistenceClient interface {
	// LoadAll returns every forum with its post metadata, ordered by post
	// number within each forum. Called once at startup.
	LoadAll(ctx context.Context) ([]*types.ForumRecord, error)

	// StoreForum persists a newly created forum.
	StoreForum(ctx context.Context, forum *types.ForumRecord) error

	// StorePost persists the metadata of a newly created post.
	StorePost(ctx context.Context, post *types.PostRecord) error

	// UpdatePost persists a state change for an existing post.
	UpdatePost(ctx context.Context, post *types.PostRecord) error

	// StorePostContent persists the text body of a post.
	StorePostContent(ctx context.Context, forumID string, number int64, body string) error

	// LoadPostContent fetches a post body. Returns ErrContentNotFound if the
	// post has no stored body.
	LoadPostContent(ctx context.Context, forumID string, number int64) (string, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the store.
	Close() error
}

// SessionStore persists issued sessions so tokens survive process restarts.
type SessionStore interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*types.Session, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
