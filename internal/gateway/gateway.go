// ABOUTME: Gateway wires the services together and owns the HTTP server
// ABOUTME: Builds the store, services, orchestrator, and route table

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/agentstatus"
	"github.com/neurofluxion/flux-gateway/internal/chat"
	"github.com/neurofluxion/flux-gateway/internal/config"
	"github.com/neurofluxion/flux-gateway/internal/conversation"
	"github.com/neurofluxion/flux-gateway/internal/docindex"
	"github.com/neurofluxion/flux-gateway/internal/status"
	"github.com/neurofluxion/flux-gateway/internal/store"
	"github.com/neurofluxion/flux-gateway/internal/upstream"
)

// Gateway is the assembled mediation layer: entity services over one store,
// the chat orchestrator, and the backend proxy behind one HTTP server.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	store          store.Store
	conversations  *conversation.Service
	agents         *agentstatus.Service
	documents      *docindex.Service
	chat           *chat.Orchestrator
	status         *status.Aggregator
	upstream       *upstream.Client
	uploadMaxBytes int64

	httpServer *http.Server
}

// New builds a Gateway from configuration. The store backing is selected by
// config (memory or sqlite); the agent roster is seeded during construction.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	agents, err := agentstatus.New(ctx, st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing agent registry: %w", err)
	}

	backendClient := upstream.New(cfg.Backend.BaseURL, nil, logger)
	conversations := conversation.New(st, logger)

	g := &Gateway{
		cfg:            cfg,
		logger:         logger.With("component", "gateway"),
		store:          st,
		conversations:  conversations,
		agents:         agents,
		documents:      docindex.New(st, logger),
		chat:           chat.New(conversations, backendClient, logger),
		status:         status.New(backendClient, logger),
		upstream:       backendClient,
		uploadMaxBytes: cfg.Upload.MaxBytes,
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// openStore selects the store backing from config.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Database.Path)
	default:
		return store.NewMemoryStore(), nil
	}
}

// routes builds the route table.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /conversations", g.handleListConversations)
	mux.HandleFunc("POST /conversations", g.handleCreateConversation)
	mux.HandleFunc("GET /conversations/{id}", g.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", g.handleDeleteConversation)
	mux.HandleFunc("GET /conversations/{id}/messages", g.handleListMessages)
	mux.HandleFunc("POST /conversations/{id}/messages", g.handleCreateMessage)

	mux.HandleFunc("POST /chat", g.handleChat)

	mux.HandleFunc("GET /agents/status", g.handleAgentStatuses)
	mux.HandleFunc("POST /agents/status", g.handleUpdateAgentStatus)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /upload", g.handleUpload)
	mux.HandleFunc("GET /models", g.handleModels)

	mux.HandleFunc("GET /documents", g.handleListDocuments)
	mux.HandleFunc("POST /documents", g.handleCreateDocument)
	mux.HandleFunc("GET /documents/{id}", g.handleGetDocument)
	mux.HandleFunc("DELETE /documents/{id}", g.handleDeleteDocument)

	return mux
}

// Handler returns the gateway's HTTP handler. Exposed for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server starting", "addr", g.cfg.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g.logger.Info("shutting down")
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return g.store.Close()
}
