package forum

import (
	"time"

	"helpforum/pkg/types"
)

// Summary is a point-in-time view of one forum's counters. TotalPosts counts
// undeleted posts, TotalUnread counts unread posts.
type Summary struct {
	Title       string `json:"title"`
	TotalPosts  int    `json:"totalPosts"`
	TotalUnread int    `json:"totalUnread"`
}

// PostInfo is a value copy of a post's metadata at event time. It shares no
// memory with the live Post, so listeners may hold it outside the registry
// lock.
type PostInfo struct {
	Number       int64
	ParentNumber *int64
	Author       string
	State        types.PostState
	WhenPosted   time.Time
}

// Listener receives forum change events. The registry invokes listeners
// synchronously while holding its lock, in no guaranteed order across
// listeners; per listener, events for one forum arrive in mutation order.
// Implementations must not block: slow work (network writes in particular)
// belongs behind a queue drained by the listener's own goroutine.
type Listener interface {
	ForumAdded(forum Summary)
	PostAdded(forumTitle string, post PostInfo)
	PostUpdated(forumTitle string, post PostInfo, oldState types.PostState)
	PostContentUpdated(forumTitle string, postNumber int64)
}
