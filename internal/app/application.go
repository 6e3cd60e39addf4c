package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"helpforum/internal/api"
	"helpforum/internal/config"
	"helpforum/internal/database"
	"helpforum/internal/forum"
	"helpforum/internal/gateway"
	"helpforum/internal/session"
	dbconfig "helpforum/pkg/database"
)

// Application wires every component and owns their lifecycle. Construction
// order matters: storage first, then state loaded from it, then the network
// surfaces that expose that state.
type Application struct {
	config     *config.Config
	db         *database.Manager
	sessions   *session.Manager
	registry   *forum.Registry
	gateway    *gateway.Handler
	apiServer  *api.Server
	httpServer *http.Server

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewApplication builds the full component graph: open and migrate the
// database, load sessions and forum state, then stand up the gateway and
// the HTTP API.
func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path

	db, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	migrator := dbconfig.NewMigrationManager(db.GetDB())
	if err := migrator.ApplyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	validator := dbconfig.NewSchemaValidator(db.GetDB())
	if err := validator.Validate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	sessions := session.NewManager(db, cfg.Session.TTL)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	if err := sessions.LoadSessions(ctx); err != nil {
		db.Close()
		return nil, err
	}

	registry := forum.NewRegistry(db)
	if err := registry.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load forums: %w", err)
	}
	log.Printf("Loaded %d forums from database", len(registry.Forums()))

	gatewayHandler := gateway.NewHandler(registry, sessions, gateway.Options{
		AuthTimeout:    cfg.Gateway.AuthTimeout,
		PingInterval:   cfg.Gateway.PingInterval,
		ReadTimeout:    cfg.Gateway.ReadTimeout,
		EventQueueSize: cfg.Gateway.EventQueueSize,
	})
	apiServer := api.NewServer(sessions, registry, db)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/helpforums", gatewayHandler.HandleForums)
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		db:         db,
		sessions:   sessions,
		registry:   registry,
		gateway:    gatewayHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins serving and launches the background sweepers. It returns
// once the HTTP listener stops; a clean shutdown yields nil.
func (a *Application) Start() error {
	a.wg.Add(1)
	go a.sweepLoop()

	log.Printf("helpforum listening on %s", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (a *Application) sweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.Session.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.config.Database.Timeout)
			if removed := a.sessions.SweepExpired(ctx); removed > 0 {
				log.Printf("Swept %d expired sessions", removed)
			}
			cancel()
			a.apiServer.Limiter().Cleanup()
		case <-a.stopCh:
			return
		}
	}
}

// Stop shuts the application down in reverse construction order: stop
// accepting traffic, drop live listener connections, stop the sweepers,
// then close storage. Shutdown does not wait for hijacked WebSocket
// connections, so the gateway sheds them explicitly before the store goes
// away.
func (a *Application) Stop(ctx context.Context) error {
	log.Println("Shutting down...")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	a.gateway.Shutdown()

	close(a.stopCh)
	a.wg.Wait()

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// Registry exposes the forum registry for tests and tooling.
func (a *Application) Registry() *forum.Registry {
	return a.registry
}
