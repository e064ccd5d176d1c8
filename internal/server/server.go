// Package server provides the HTTP server for the workspace panel.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/config"
	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/handler"
	"github.com/devrev/workspace-panel/internal/health"
	"github.com/devrev/workspace-panel/internal/metrics"
	"github.com/devrev/workspace-panel/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	handler      http.Handler
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server. m may be nil.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthCheck,
	errorHandler *apierrors.Handler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes and the middleware around them.
// The outer chain wraps the router so CORS preflights and unmatched paths
// still get request ids, logging and rate limiting.
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(metrics.MetricsMiddleware(s.metrics))
	}

	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	workspaces := api.PathPrefix("/workspaces").Subrouter()
	workspaces.HandleFunc("", s.handlers.ListWorkspaces).Methods(http.MethodGet)
	workspaces.HandleFunc("", s.handlers.CreateWorkspace).Methods(http.MethodPost)
	workspaces.HandleFunc("/{id}", s.handlers.DeleteWorkspace).Methods(http.MethodDelete)
	workspaces.HandleFunc("/{id}/database-url", s.handlers.UpdateDatabaseURL).Methods(http.MethodPut)
	workspaces.HandleFunc("/{id}/setup", s.handlers.SetupWorkspace).Methods(http.MethodPost)

	data := api.PathPrefix("/workspace-data").Subrouter()
	data.HandleFunc("/{id}", s.handlers.GetWorkspaceData).Methods(http.MethodGet)
	data.HandleFunc("/{id}/admins", s.handlers.CreateAdmin).Methods(http.MethodPost)
	data.HandleFunc("/{id}/users", s.handlers.CreateUser).Methods(http.MethodPost)
	data.HandleFunc("/{id}/admins/{adminId}", s.handlers.DeleteAdmin).Methods(http.MethodDelete)
	data.HandleFunc("/{id}/users/{userId}", s.handlers.DeleteUser).Methods(http.MethodDelete)

	api.HandleFunc("/registry", s.handlers.Registry).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})

	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.errorHandler, s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.errorHandler,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	s.handler = middleware.Chain(middlewareChain...)(s.router)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetHandler returns the router wrapped in the middleware chain.
func (s *Server) GetHandler() http.Handler {
	return s.handler
}
