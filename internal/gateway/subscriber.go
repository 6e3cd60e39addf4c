package gateway

import (
	"log"
	"sync"

	"helpforum/internal/forum"
	"helpforum/pkg/types"
)

// subscriber bridges registry fan-out to one connection. Listener callbacks
// run under the registry lock, so they only encode and enqueue; a dedicated
// goroutine drains the queue onto the connection. A slow consumer fills the
// queue and is disconnected rather than allowed to stall fan-out.
type subscriber struct {
	registry   *forum.Registry
	conn       *Connection
	queue      chan []byte
	onTeardown func(*subscriber)

	mu     sync.Mutex
	broken bool

	teardownOnce sync.Once
}

func newSubscriber(registry *forum.Registry, conn *Connection, queueSize int) *subscriber {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &subscriber{
		registry: registry,
		conn:     conn,
		queue:    make(chan []byte, queueSize),
	}
}

// enqueue hands a frame to the drain goroutine without ever blocking.
func (s *subscriber) enqueue(frame []byte) {
	s.mu.Lock()
	if s.broken {
		s.mu.Unlock()
		return
	}
	select {
	case s.queue <- frame:
		s.mu.Unlock()
	default:
		s.broken = true
		s.mu.Unlock()
		log.Printf("Disconnecting slow listener: %v", ErrQueueOverflow)
		// Teardown unsubscribes, which needs the registry lock; the
		// fan-out that called us may be holding it, so detach.
		go s.teardown()
	}
}

// run drains queued frames onto the connection until it closes.
func (s *subscriber) run() {
	defer s.teardown()
	for {
		select {
		case frame := <-s.queue:
			if err := s.conn.WriteText(frame); err != nil {
				return
			}
		case <-s.conn.Done():
			return
		}
	}
}

// teardown deregisters the listener and closes the connection. Idempotent;
// reachable from queue overflow, write failure, read-loop exit, and server
// shutdown.
func (s *subscriber) teardown() {
	s.teardownOnce.Do(func() {
		s.registry.Unsubscribe(s)
		s.conn.Close()
		if s.onTeardown != nil {
			s.onTeardown(s)
		}
	})
}

func (s *subscriber) ForumAdded(summary forum.Summary) {
	frame, err := encodeForumAdded(summary)
	if err != nil {
		log.Printf("Failed to encode forumAdded event: %v", err)
		return
	}
	s.enqueue(frame)
}

func (s *subscriber) PostAdded(forumTitle string, post forum.PostInfo) {
	frame, err := encodePostAdded(forumTitle, post)
	if err != nil {
		log.Printf("Failed to encode postAdded event: %v", err)
		return
	}
	s.enqueue(frame)
}

func (s *subscriber) PostUpdated(forumTitle string, post forum.PostInfo, oldState types.PostState) {
	frame, err := encodePostUpdated(forumTitle, post, oldState.String())
	if err != nil {
		log.Printf("Failed to encode postUpdated event: %v", err)
		return
	}
	s.enqueue(frame)
}

func (s *subscriber) PostContentUpdated(forumTitle string, postNumber int64) {
	frame, err := encodePostContentUpdated(forumTitle, postNumber)
	if err != nil {
		log.Printf("Failed to encode postContentUpdated event: %v", err)
		return
	}
	s.enqueue(frame)
}
