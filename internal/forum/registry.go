package forum

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

// Registry owns the set of forums and the set of registered listeners, and
// is the single synchronization domain for all of them: every forum and post
// mutation, and every listener fan-out, happens under this one mutex. One
// global lock instead of per-forum locks keeps events for different forums
// totally ordered with respect to each other without a lock-ordering
// protocol; post authoring is human-scale, so the lost parallelism costs
// nothing measurable.
//
// Constructed once at startup, populated by Load, and passed explicitly to
// whatever needs it for the process lifetime.
type Registry struct {
	mu    sync.Mutex
	store interfaces.PersistenceClient

	forums  []*Forum
	byID    map[string]*Forum
	byTitle map[string]*Forum

	listeners map[Listener]struct{}
}

// NewRegistry creates an empty registry backed by the given store.
func NewRegistry(store interfaces.PersistenceClient) *Registry {
	return &Registry{
		store:     store,
		byID:      make(map[string]*Forum),
		byTitle:   make(map[string]*Forum),
		listeners: make(map[Listener]struct{}),
	}
}

// Load populates the registry from the store. Called once at startup,
// before any listener or connection exists.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load forums: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		forum := newForum(r, record.ID, record.Title, record.CreatedAt)
		for _, post := range record.Posts {
			forum.seedPost(post)
		}
		r.forums = append(r.forums, forum)
		r.byID[forum.id] = forum
		r.byTitle[forum.title] = forum
	}

	log.Printf("Loaded %d forums from store", len(records))
	return nil
}

// CreateForum appends a new forum and notifies all listeners. Titles must
// be unique: they identify forums on the notification wire. Forums are
// never removed.
func (r *Registry) CreateForum(ctx context.Context, title string) (*Forum, error) {
	if !types.IsValidForumTitle(title) {
		return nil, types.ErrInvalidForumTitle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTitle[title]; exists {
		return nil, ErrDuplicateForumTitle
	}

	record := &types.ForumRecord{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := r.store.StoreForum(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist forum: %w", err)
	}

	forum := newForum(r, record.ID, record.Title, record.CreatedAt)
	r.forums = append(r.forums, forum)
	r.byID[forum.id] = forum
	r.byTitle[forum.title] = forum

	summary := forum.summaryLocked()
	r.fanoutLocked(func(l Listener) { l.ForumAdded(summary) })

	return forum, nil
}

// Forums returns a copy of the forum list. The copy can be iterated outside
// the lock; the Forum pointers themselves are safe to share because every
// Forum method re-enters the registry lock.
func (r *Registry) Forums() []*Forum {
	r.mu.Lock()
	defer r.mu.Unlock()

	forums := make([]*Forum, len(r.forums))
	copy(forums, r.forums)
	return forums
}

// ForumByID looks a forum up by storage identity.
func (r *Registry) ForumByID(id string) (*Forum, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	forum, ok := r.byID[id]
	return forum, ok
}

// ForumByTitle looks a forum up by its wire identity.
func (r *Registry) ForumByTitle(title string) (*Forum, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	forum, ok := r.byTitle[title]
	return forum, ok
}

// Subscribe registers a listener and returns a snapshot of every forum's
// counters taken under the same lock acquisition. Registration and snapshot
// are atomic with respect to mutations: no event can fall between the
// snapshot and the first delta the listener receives.
func (r *Registry) Subscribe(l Listener) []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners[l] = struct{}{}
	return r.summariesLocked()
}

// Unsubscribe deregisters a listener. Idempotent: removing a listener that
// is not registered is a no-op. After return no further events are
// delivered to it.
func (r *Registry) Unsubscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, l)
}

// ListenerCount returns the number of registered listeners.
func (r *Registry) ListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Summaries returns current counters for every forum.
func (r *Registry) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summariesLocked()
}

func (r *Registry) summariesLocked() []Summary {
	summaries := make([]Summary, 0, len(r.forums))
	for _, forum := range r.forums {
		summaries = append(summaries, forum.summaryLocked())
	}
	return summaries
}

// fanoutLocked delivers an event to every registered listener. A listener
// that panics must not corrupt delivery to the others, so each call is
// isolated and a panicking listener is dropped on the spot.
func (r *Registry) fanoutLocked(deliver func(Listener)) {
	var broken []Listener
	for l := range r.listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("Listener panicked during event delivery, removing: %v", rec)
					broken = append(broken, l)
				}
			}()
			deliver(l)
		}()
	}
	for _, l := range broken {
		delete(r.listeners, l)
	}
}
