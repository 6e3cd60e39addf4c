package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "helpforum/pkg/database"
	"helpforum/pkg/interfaces"
	"helpforum/pkg/types"
)

// Manager implements the PersistenceClient and SessionStore interfaces over
// SQLite. All writes funnel through a single goroutine; reads run
// concurrently against the WAL.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Post states are stored as single-character codes; the mapping is a
// storage concern and never leaks past this package.
const (
	codeUnread  = "U"
	codeRead    = "R"
	codeStarred = "S"
	codeDeleted = "D"
)

func stateToCode(s types.PostState) (string, error) {
	switch s {
	case types.StateUnread:
		return codeUnread, nil
	case types.StateRead:
		return codeRead, nil
	case types.StateStarred:
		return codeStarred, nil
	case types.StateDeleted:
		return codeDeleted, nil
	default:
		return "", fmt.Errorf("%w: %d", types.ErrInvalidState, int(s))
	}
}

func stateFromCode(code string) (types.PostState, error) {
	switch code {
	case codeUnread:
		return types.StateUnread, nil
	case codeRead:
		return types.StateRead, nil
	case codeStarred:
		return types.StateStarred, nil
	case codeDeleted:
		return types.StateDeleted, nil
	default:
		return 0, fmt.Errorf("unknown post state code %q", code)
	}
}

// NewManager opens the database and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine. SQLite
// allows only one writer; serializing here avoids lock contention entirely.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db) // retry once
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// LoadAll returns every forum with its post metadata, posts ordered by
// number. Called once during startup to seed the registry.
func (m *Manager) LoadAll(ctx context.Context) ([]*types.ForumRecord, error) {
	forumRows, err := m.db.QueryContext(ctx,
		"SELECT id, title, created_at FROM forums ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query forums: %w", err)
	}
	defer func() { _ = forumRows.Close() }()

	var forums []*types.ForumRecord
	byID := make(map[string]*types.ForumRecord)

	for forumRows.Next() {
		var record types.ForumRecord
		if err := forumRows.Scan(&record.ID, &record.Title, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forum row: %w", err)
		}
		forums = append(forums, &record)
		byID[record.ID] = &record
	}
	if err := forumRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forum rows: %w", err)
	}

	postRows, err := m.db.QueryContext(ctx, `
		SELECT forum_id, number, parent_number, author, state, posted_at
		FROM posts
		ORDER BY forum_id, number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer func() { _ = postRows.Close() }()

	for postRows.Next() {
		var post types.PostRecord
		var parent sql.NullInt64
		var code string

		err := postRows.Scan(&post.ForumID, &post.Number, &parent, &post.Author, &code, &post.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}

		if parent.Valid {
			v := parent.Int64
			post.ParentNumber = &v
		}
		if post.State, err = stateFromCode(code); err != nil {
			return nil, fmt.Errorf("post %s/%d: %w", post.ForumID, post.Number, err)
		}

		forum, ok := byID[post.ForumID]
		if !ok {
			return nil, fmt.Errorf("post %s/%d references unknown forum", post.ForumID, post.Number)
		}
		forum.Posts = append(forum.Posts, &post)
	}
	if err := postRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return forums, nil
}

// StoreForum persists a newly created forum.
func (m *Manager) StoreForum(ctx context.Context, forum *types.ForumRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO forums (id, title, created_at) VALUES (?, ?, ?)",
			forum.ID, forum.Title, forum.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert forum: %w", err)
		}
		return nil
	})
}

// StorePost persists the metadata of a newly created post.
func (m *Manager) StorePost(ctx context.Context, post *types.PostRecord) error {
	code, err := stateToCode(post.State)
	if err != nil {
		return err
	}

	return m.executeWrite(func(db *sql.DB) error {
		var parent interface{}
		if post.ParentNumber != nil {
			parent = *post.ParentNumber
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO posts (forum_id, number, parent_number, author, state, posted_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, post.ForumID, post.Number, parent, post.Author, code, post.PostedAt)
		if err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
		return nil
	})
}

// UpdatePost persists a state change for an existing post.
func (m *Manager) UpdatePost(ctx context.Context, post *types.PostRecord) error {
	code, err := stateToCode(post.State)
	if err != nil {
		return err
	}

	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			"UPDATE posts SET state = ? WHERE forum_id = ? AND number = ?",
			code, post.ForumID, post.Number,
		)
		if err != nil {
			return fmt.Errorf("failed to update post: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("post %s/%d not found", post.ForumID, post.Number)
		}
		return nil
	})
}

// StorePostContent persists the text body of a post.
func (m *Manager) StorePostContent(ctx context.Context, forumID string, number int64, body string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO post_contents (forum_id, number, body) VALUES (?, ?, ?)
			ON CONFLICT (forum_id, number) DO UPDATE SET body = excluded.body
		`, forumID, number, body)
		if err != nil {
			return fmt.Errorf("failed to store post content: %w", err)
		}
		return nil
	})
}

// LoadPostContent fetches a post body for lazy loading.
func (m *Manager) LoadPostContent(ctx context.Context, forumID string, number int64) (string, error) {
	var body string
	err := m.db.QueryRowContext(ctx,
		"SELECT body FROM post_contents WHERE forum_id = ? AND number = ?",
		forumID, number,
	).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", interfaces.ErrContentNotFound
		}
		return "", fmt.Errorf("failed to load post content: %w", err)
	}
	return body, nil
}

// CreateSession persists an issued session token.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, user_id, role, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?)
		`, session.ID, session.UserID, session.Role, session.CreatedAt, session.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	err := m.db.QueryRowContext(ctx,
		"SELECT id, user_id, role, created_at, expires_at FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.Role, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session token.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// ListSessions returns all stored sessions, expired or not. The session
// manager filters expiry when it loads its cache.
func (m *Manager) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id, user_id, role, created_at, expires_at FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		err := rows.Scan(&session.ID, &session.UserID, &session.Role,
			&session.CreatedAt, &session.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// DeleteExpiredSessions removes sessions past their lifetime and returns how
// many were removed.
func (m *Manager) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	var deleted int64
	err := m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			"DELETE FROM sessions WHERE expires_at <= ?", time.Now())
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted sessions: %w", err)
		}
		return nil
	})
	return deleted, err
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM forums").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection for migrations and validation.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
