// ABOUTME: Gateway orchestrator that serves the session streaming HTTP API
// ABOUTME: Manages store, registry, engine runner, and server lifecycle

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/2389/weaver-gateway/internal/auth"
	"github.com/2389/weaver-gateway/internal/config"
	"github.com/2389/weaver-gateway/internal/conversation"
	"github.com/2389/weaver-gateway/internal/engine"
	"github.com/2389/weaver-gateway/internal/registry"
	"github.com/2389/weaver-gateway/internal/store"
)

// Gateway orchestrates the weaver-gateway server components. It owns the
// HTTP server and the process-wide registry of active runs.
type Gateway struct {
	config     *config.Config
	store      store.Store
	service    *conversation.Service
	normalizer *conversation.Normalizer
	registry   *registry.Registry
	runner     engine.Runner
	resolver   *auth.Resolver
	httpServer *http.Server
	logger     *slog.Logger

	// activeStreams counts currently attached SSE clients
	activeStreams atomic.Int64
}

// New creates a gateway wired to the given store and engine runner.
func New(cfg *config.Config, st store.Store, runner engine.Runner, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth disabled - no jwt_secret configured")
	}

	g := &Gateway{
		config:     cfg,
		store:      st,
		service:    conversation.NewService(st, logger),
		normalizer: conversation.NewNormalizer(st, logger),
		registry:   registry.New(),
		runner:     runner,
		resolver:   auth.NewResolver(verifier),
		logger:     logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: g.routes(),
	}
	return g
}

// routes builds the HTTP mux for all gateway endpoints.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// Session lifecycle
	mux.HandleFunc("/start", g.handleStart)
	mux.HandleFunc("/chat-stream", g.handleChatStream)
	mux.HandleFunc("/stop", g.handleStop)

	// Conversation history
	mux.HandleFunc("/conversations", g.handleListConversations)
	mux.HandleFunc("/conversations/user", g.handleUserConversations)
	mux.HandleFunc("/conversations/delete", g.handleDeleteConversation)
	mux.HandleFunc("/conversations/view", g.handleConversationView)

	// Team management
	mux.HandleFunc("/teams", g.handleTeams)
	mux.HandleFunc("/teams/", g.handleTeamByID)

	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Active runs are cancelled during shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and cancels every active run.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.registry.CancelAll()
	return g.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// handleReady handles GET /health/ready requests with stream accounting.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ready",
		"active_streams": g.activeStreams.Load(),
		"active_runs":    g.registry.Len(),
		"dropped_writes": g.normalizer.DroppedWrites(),
	})
}
