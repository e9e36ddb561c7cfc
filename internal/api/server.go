package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"contractkit/internal/storage"
)

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks and the
// recorded deployments, invocations and scenario runs
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	repository storage.Repository
	port       string
}

// NewServer creates a new API server instance
// The repository is made available to all handlers for database access
func NewServer(port string, repository storage.Repository) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:     router,
		repository: repository,
		port:       port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Deployment endpoints
	s.router.HandleFunc("/deployments", s.handleListDeployments).Methods(http.MethodGet)
	s.router.HandleFunc("/deployments/{address}", s.handleGetDeployment).Methods(http.MethodGet)
	s.router.HandleFunc("/deployments/{address}/invocations", s.handleListInvocations).Methods(http.MethodGet)

	// Scenario endpoints
	s.router.HandleFunc("/scenarios", s.handleListScenarioRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/scenarios/{id}", s.handleGetScenarioRun).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(s.router)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/deployments", "/scenarios"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
