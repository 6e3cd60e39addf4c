package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

// Post is one message in a Forum. Identity fields (number, parent, author,
// whenPosted) are immutable after creation; state and content change under
// the owning registry's lock. Content stays unloaded in memory until first
// read and is never invalidated back.
type Post struct {
	forum        *Forum
	number       int64
	parentNumber *int64
	author       string
	whenPosted   time.Time

	// Guarded by the registry lock.
	state        types.PostState
	beforeDelete types.PostState // last non-deleted state, for undelete
	content      *string         // nil until loaded
}

// Number returns the post's forum-unique, strictly increasing number.
func (p *Post) Number() int64 { return p.number }

// ParentNumber returns a copy of the optional parent reference. The parent
// may be a deleted post; deleted posts remain as placeholders so threads
// stay navigable.
func (p *Post) ParentNumber() *int64 {
	if p.parentNumber == nil {
		return nil
	}
	v := *p.parentNumber
	return &v
}

// Author returns the opaque identity key of the post's author.
func (p *Post) Author() string { return p.author }

// WhenPosted returns the creation timestamp.
func (p *Post) WhenPosted() time.Time { return p.whenPosted }

// State returns the current post state.
func (p *Post) State() types.PostState {
	r := p.forum.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	return p.state
}

// SetState transitions the post to next. Any state may transition to any
// other. The change is persisted before in-memory state moves, so the store
// and the counters never disagree; the owning forum adjusts its counters and
// fans the event out while the registry lock is still held.
func (p *Post) SetState(ctx context.Context, next types.PostState) error {
	if !next.Valid() {
		return types.ErrInvalidState
	}

	r := p.forum.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	return p.setStateLocked(ctx, next)
}

// Undelete restores the state held before the last delete, defaulting to
// UNREAD when the pre-delete state is unknown (e.g. the delete happened in a
// previous process). No-op if the post is not deleted.
func (p *Post) Undelete(ctx context.Context) error {
	r := p.forum.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.state != types.StateDeleted {
		return nil
	}
	return p.setStateLocked(ctx, p.beforeDelete)
}

func (p *Post) setStateLocked(ctx context.Context, next types.PostState) error {
	old := p.state

	record := p.recordLocked()
	record.State = next
	if err := p.forum.registry.store.UpdatePost(ctx, record); err != nil {
		return fmt.Errorf("failed to persist state change: %w", err)
	}

	if next == types.StateDeleted && old != types.StateDeleted {
		p.beforeDelete = old
	}
	p.state = next
	p.forum.postUpdatedLocked(p, old)
	return nil
}

// Content returns the post body, fetching it from the store on first access.
// The fetch happens outside the registry lock; whichever load lands first
// fills the cache and later loads observe it.
func (p *Post) Content(ctx context.Context) (string, error) {
	r := p.forum.registry

	r.mu.Lock()
	if p.content != nil {
		body := *p.content
		r.mu.Unlock()
		return body, nil
	}
	r.mu.Unlock()

	body, err := r.store.LoadPostContent(ctx, p.forum.id, p.number)
	if err != nil {
		if !errors.Is(err, interfaces.ErrContentNotFound) {
			return "", fmt.Errorf("failed to load post content: %w", err)
		}
		body = "" // no stored body reads as empty
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p.content == nil {
		p.content = &body
	}
	return *p.content, nil
}

// SetContent stores the post body and raises a content-only change event.
// Counters are unaffected. A nil body from the outer layers is normalized to
// the empty string before reaching here.
func (p *Post) SetContent(ctx context.Context, body string) error {
	f := p.forum
	r := f.registry

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.StorePostContent(ctx, f.id, p.number, body); err != nil {
		return fmt.Errorf("failed to persist post content: %w", err)
	}

	p.content = &body
	r.fanoutLocked(func(l Listener) { l.PostContentUpdated(f.title, p.number) })
	return nil
}

// recordLocked builds the persistence record for the post's current state.
func (p *Post) recordLocked() *types.PostRecord {
	return &types.PostRecord{
		ForumID:      p.forum.id,
		Number:       p.number,
		ParentNumber: p.ParentNumber(),
		Author:       p.author,
		State:        p.state,
		PostedAt:     p.whenPosted,
	}
}

// infoLocked builds the event-time value copy of the post.
func (p *Post) infoLocked() PostInfo {
	return PostInfo{
		Number:       p.number,
		ParentNumber: p.ParentNumber(),
		Author:       p.author,
		State:        p.state,
		WhenPosted:   p.whenPosted,
	}
}
