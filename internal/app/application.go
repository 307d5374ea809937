package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"encore/internal/api"
	"encore/internal/chat"
	"encore/internal/config"
	"encore/internal/database"
	"encore/internal/registry"
	"encore/internal/reviews"
	"encore/internal/token"
	dbconfig "encore/pkg/database"
)

// Application coordinates all system components. Initialization follows
// dependency order: Store -> Registry/Ledger/Issuer -> Rooms -> Hub -> API -> HTTP.
type Application struct {
	config     *config.Config
	store      *database.Store
	registry   *registry.Manager
	ledger     *reviews.Ledger
	issuer     *token.Issuer
	rooms      *chat.Rooms
	hub        *chat.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication wires every component with explicit constructor injection.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storeConfig := &dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	store, err := database.NewStore(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	validator := dbconfig.NewSchemaValidator(store.DB())
	if err := validator.ValidateTablesExist(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	sessionRegistry := registry.NewManager(store)
	reviewLedger := reviews.NewLedger(store)
	issuer := token.NewIssuer(cfg.Media.AppID, cfg.Media.AppCertificate, store)

	rooms := chat.NewRooms()
	hub := chat.NewHub(rooms)
	chatHandler := chat.NewHandler(hub, cfg.WebSocket.BufferSize)

	apiServer := api.NewServer(sessionRegistry, reviewLedger, issuer, rooms)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws/chat", chatHandler.HandleChat)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   sessionRegistry,
		ledger:     reviewLedger,
		issuer:     issuer,
		rooms:      rooms,
		hub:        hub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Registry exposes the session registry, mainly for tests.
func (app *Application) Registry() *registry.Manager {
	return app.registry
}

// Start begins serving. The hub starts before the HTTP listener so chat
// frames have somewhere to go from the first connection.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting Encore application on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Encore application started successfully")
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP -> Hub -> Store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Encore application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.hub.Stop(); err != nil && err != chat.ErrHubNotRunning {
		log.Printf("Chat hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("Encore application shutdown complete")
	return nil
}
