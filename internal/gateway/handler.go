package gateway

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"helpforum/internal/forum"
	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

// Options control per-connection timing and buffering.
type Options struct {
	AuthTimeout    time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	EventQueueSize int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		AuthTimeout:    30 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		EventQueueSize: 256,
	}
}

// Handler terminates listener WebSocket connections: it authenticates each
// one against the session authority, subscribes it to the registry, and
// streams the snapshot plus deltas.
type Handler struct {
	registry  *forum.Registry
	authority interfaces.SessionAuthority
	opts      Options
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHandler creates a gateway handler over the given registry and authority.
func NewHandler(registry *forum.Registry, authority interfaces.SessionAuthority, opts Options) *Handler {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultOptions().AuthTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultOptions().PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultOptions().ReadTimeout
	}
	return &Handler{
		registry:  registry,
		authority: authority,
		opts:      opts,
		subs:      make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleForums serves the /ws/helpforums endpoint.
func (h *Handler) HandleForums(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws)

	identity, ok := h.authenticate(ws)
	if !ok {
		conn.Close()
		return
	}
	log.Printf("Listener authenticated: user=%s role=%s", identity.UserID, identity.Role)

	sub := newSubscriber(h.registry, conn, h.opts.EventQueueSize)
	sub.onTeardown = h.untrack
	if !h.track(sub) {
		conn.Close()
		return
	}
	summaries := h.registry.Subscribe(sub)

	snapshot, err := EncodeSnapshot(summaries)
	if err != nil {
		log.Printf("Failed to encode snapshot: %v", err)
		sub.teardown()
		return
	}
	// The snapshot goes out before the drain goroutine starts, so every
	// delta queued since Subscribe is delivered after it.
	if err := conn.WriteText(snapshot); err != nil {
		sub.teardown()
		return
	}
	go sub.run()

	defer sub.teardown()
	go h.pingLoop(conn)
	h.readLoop(ws, conn, identity.UserID)
}

// authenticate runs the unauthenticated phase: one auth window in which the
// client must present a valid "Session:<token>" frame. Other frames are
// ignored; the window is not extended by them.
func (h *Handler) authenticate(ws *websocket.Conn) (*types.Identity, bool) {
	deadline := time.Now().Add(h.opts.AuthTimeout)
	if err := ws.SetReadDeadline(deadline); err != nil {
		return nil, false
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) || websocket.IsUnexpectedCloseError(err) {
				log.Printf("Connection closed before authentication: %v", err)
			} else {
				log.Printf("Authentication window expired: %v", err)
			}
			return nil, false
		}

		token, isSession := ParseSessionFrame(data)
		if !isSession {
			log.Printf("Ignoring frame before authentication")
			continue
		}

		resolved, err := h.authority.Validate(token)
		switch {
		case err == nil:
			if !resolved.CanObserveForums() {
				writeAuthError(ws, reasonNotAuthorized)
				return nil, false
			}
			return resolved, true
		case errors.Is(err, interfaces.ErrSessionExpired):
			writeAuthError(ws, reasonSessionExpired)
			return nil, false
		default:
			writeAuthError(ws, reasonInvalidSession)
			return nil, false
		}
	}
}

// writeAuthError sends a SessionError frame directly. Nothing is queued on
// the writer goroutine before authentication succeeds, so a direct write
// cannot interleave with it.
func writeAuthError(ws *websocket.Conn, reason string) {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, EncodeSessionError(reason)); err != nil {
		log.Printf("Failed to send session error: %v", err)
	}
}

// readLoop consumes inbound frames after authentication. The protocol has no
// post-auth client messages, so frames are discarded; the loop exists to
// surface closes and keep the pong handler running.
func (h *Handler) readLoop(ws *websocket.Conn, conn *Connection, userID string) {
	resetDeadline := func() error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	}
	if err := resetDeadline(); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Listener %s disconnected: %v", userID, err)
			}
			return
		}
		if err := resetDeadline(); err != nil {
			return
		}
	}
}

// track registers a live subscriber for shutdown. Returns false once the
// handler has shut down, so a connection racing Shutdown is refused.
func (h *Handler) track(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	return true
}

func (h *Handler) untrack(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Shutdown tears down every live listener connection and refuses new ones.
// Called during server shutdown, after the HTTP listener stops and before
// storage closes, so no connection can reach a closed store.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.teardown()
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
