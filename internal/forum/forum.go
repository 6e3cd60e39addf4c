package forum

import (
	"context"
	"fmt"
	"time"

	"helpforum/pkg/types"
)

// Forum owns an ordered, append-only sequence of Posts for one topic and
// maintains two counters incrementally: numUnread (posts in UNREAD) and
// numUndeleted (posts not in DELETED). All mutation is serialized through
// the owning registry's single lock; the Forum deliberately has no lock of
// its own so that events across forums stay totally ordered per listener.
type Forum struct {
	registry  *Registry
	id        string
	title     string
	createdAt time.Time

	// Guarded by the registry lock.
	posts        []*Post
	nextNumber   int64
	numUnread    int
	numUndeleted int
}

// newForum constructs an empty forum. Posts are attached either by AddPost
// or by seedPost during startup load.
func newForum(registry *Registry, id, title string, createdAt time.Time) *Forum {
	return &Forum{
		registry:   registry,
		id:         id,
		title:      title,
		createdAt:  createdAt,
		nextNumber: 1,
	}
}

// ID returns the forum's storage identity.
func (f *Forum) ID() string { return f.id }

// Title returns the immutable display name. Titles identify forums on the
// notification wire.
func (f *Forum) Title() string { return f.title }

// CreatedAt returns the forum creation timestamp.
func (f *Forum) CreatedAt() time.Time { return f.createdAt }

// AddPost creates the next post in the forum. This is the only
// post-creation path: the post number is assigned here, starting at 1,
// strictly increasing and never reused, even across deletions. The record
// is persisted before any in-memory state changes; on store failure nothing
// is applied and no event fires.
func (f *Forum) AddPost(ctx context.Context, parentNumber *int64, author string, initial types.PostState) (*Post, error) {
	if !initial.Valid() {
		return nil, types.ErrInvalidState
	}
	if !types.IsValidUserID(author) {
		return nil, types.ErrInvalidUserID
	}

	r := f.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	// A parent must be an existing post in this forum; it may be deleted.
	if parentNumber != nil && (*parentNumber < 1 || *parentNumber >= f.nextNumber) {
		return nil, ErrParentNotFound
	}

	var parentCopy *int64
	if parentNumber != nil {
		v := *parentNumber
		parentCopy = &v
	}

	number := f.nextNumber
	now := time.Now()

	record := &types.PostRecord{
		ForumID:      f.id,
		Number:       number,
		ParentNumber: parentCopy,
		Author:       author,
		State:        initial,
		PostedAt:     now,
	}
	if err := r.store.StorePost(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist post: %w", err)
	}

	f.nextNumber++
	post := &Post{
		forum:        f,
		number:       number,
		parentNumber: parentCopy,
		author:       author,
		whenPosted:   now,
		state:        initial,
		beforeDelete: types.StateUnread,
	}
	f.posts = append(f.posts, post)

	if initial == types.StateUnread {
		f.numUnread++
	}
	if initial != types.StateDeleted {
		f.numUndeleted++
	}

	info := post.infoLocked()
	r.fanoutLocked(func(l Listener) { l.PostAdded(f.title, info) })

	return post, nil
}

// PostCount returns the number of posts in the forum, deleted included.
func (f *Forum) PostCount() int {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	return len(f.posts)
}

// Post returns the post at the given zero-based index.
func (f *Forum) Post(index int) (*Post, error) {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()

	if index < 0 || index >= len(f.posts) {
		return nil, ErrIndexOutOfRange
	}
	return f.posts[index], nil
}

// PostByNumber returns the post with the given number, or nil if no such
// post exists.
func (f *Forum) PostByNumber(number int64) *Post {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()

	// Numbers are dense in practice, so the indexed position is almost
	// always right; fall back to a scan for seeded data with gaps.
	if idx := int(number - 1); idx >= 0 && idx < len(f.posts) && f.posts[idx].number == number {
		return f.posts[idx]
	}
	for _, post := range f.posts {
		if post.number == number {
			return post
		}
	}
	return nil
}

// NumUnread returns the count of posts in UNREAD state.
func (f *Forum) NumUnread() int {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	return f.numUnread
}

// NumUndeleted returns the count of posts not in DELETED state.
func (f *Forum) NumUndeleted() int {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	return f.numUndeleted
}

// Summary returns the forum's current counters.
func (f *Forum) Summary() Summary {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	return f.summaryLocked()
}

func (f *Forum) summaryLocked() Summary {
	return Summary{
		Title:       f.title,
		TotalPosts:  f.numUndeleted,
		TotalUnread: f.numUnread,
	}
}

// postUpdatedLocked adjusts the counters for a state transition and fans the
// event out. Four independent deltas: unread entered/exited and deleted
// entered/exited; both pairs can fire in one transition (UNREAD -> DELETED
// decrements both counters).
func (f *Forum) postUpdatedLocked(post *Post, old types.PostState) {
	next := post.state

	if old == types.StateUnread && next != types.StateUnread {
		f.numUnread--
	}
	if old != types.StateUnread && next == types.StateUnread {
		f.numUnread++
	}
	if old == types.StateDeleted && next != types.StateDeleted {
		f.numUndeleted++
	}
	if old != types.StateDeleted && next == types.StateDeleted {
		f.numUndeleted--
	}

	info := post.infoLocked()
	f.registry.fanoutLocked(func(l Listener) { l.PostUpdated(f.title, info, old) })
}

// seedPost attaches a post loaded from the store during startup. Counters
// accumulate here so the incremental invariant starts from persisted truth.
// Caller holds the registry lock.
func (f *Forum) seedPost(record *types.PostRecord) {
	var parentCopy *int64
	if record.ParentNumber != nil {
		v := *record.ParentNumber
		parentCopy = &v
	}

	post := &Post{
		forum:        f,
		number:       record.Number,
		parentNumber: parentCopy,
		author:       record.Author,
		whenPosted:   record.PostedAt,
		state:        record.State,
		beforeDelete: types.StateUnread,
	}
	f.posts = append(f.posts, post)

	if record.Number >= f.nextNumber {
		f.nextNumber = record.Number + 1
	}
	if record.State == types.StateUnread {
		f.numUnread++
	}
	if record.State != types.StateDeleted {
		f.numUndeleted++
	}
}
