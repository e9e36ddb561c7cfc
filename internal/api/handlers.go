package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contractkit/internal/models"
	"contractkit/internal/storage"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"service":     "contractkit",
		"version":     "1.0.0",
		"description": "EVM contract client and scenario harness",
		"endpoints": map[string]string{
			"GET /":                                  "This page - Service information",
			"GET /health":                            "Health check endpoint",
			"GET /metrics":                           "Prometheus metrics for monitoring",
			"GET /deployments":                       "List recorded deployments (supports ?limit=, ?offset=)",
			"GET /deployments/{address}":             "Get a deployment with its usage",
			"GET /deployments/{address}/invocations": "List calls and transactions against a deployment",
			"GET /scenarios":                         "List scenario runs (supports ?limit=, ?offset=)",
			"GET /scenarios/{id}":                    "Get a scenario run with its steps",
		},
	}

	s.sendJSON(w, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems, pings the repository
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repository.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		s.sendError(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "contractkit",
	}

	s.sendJSON(w, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// DEPLOYMENT ENDPOINTS
// =============================================================================

// handleListDeployments lists recorded deployments, newest first
// GET /deployments?limit=50&offset=0
func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r.URL.Query())

	deployments, err := s.repository.ListDeployments(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list deployments", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if deployments == nil {
		deployments = []*models.Deployment{}
	}

	s.sendJSON(w, models.DeploymentListResponse{
		Deployments: deployments,
		Total:       len(deployments),
		Page:        pageNumber(limit, offset),
		PageSize:    limit,
	})
}

// handleGetDeployment returns a deployment with its usage
// GET /deployments/{address}
func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	address, ok := normalizeAddress(mux.Vars(r)["address"])
	if !ok {
		s.sendError(w, "Invalid address", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	deployment, err := s.repository.GetDeployment(ctx, address)
	if err != nil {
		s.sendRepositoryError(w, "Deployment not found", err)
		return
	}

	invocations, err := s.repository.ListInvocations(ctx, address, 1000, 0)
	if err != nil {
		slog.Error("Failed to get invocations", "address", address, "error", err)
		invocations = nil // Continue without invocations
	}

	s.sendJSON(w, BuildDeploymentResponse(deployment, invocations))
}

// handleListInvocations returns the invocations against a deployment
// GET /deployments/{address}/invocations?limit=50&offset=0
func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	address, ok := normalizeAddress(mux.Vars(r)["address"])
	if !ok {
		s.sendError(w, "Invalid address", http.StatusBadRequest)
		return
	}
	limit, offset := pagination(r.URL.Query())

	invocations, err := s.repository.ListInvocations(r.Context(), address, limit, offset)
	if err != nil {
		slog.Error("Failed to list invocations", "address", address, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if invocations == nil {
		invocations = []*models.Invocation{}
	}

	s.sendJSON(w, models.InvocationsResponse{
		Address:     address,
		Invocations: invocations,
		Total:       len(invocations),
	})
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// handleListScenarioRuns lists scenario runs, newest first
// GET /scenarios?limit=50&offset=0
func (s *Server) handleListScenarioRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r.URL.Query())

	runs, err := s.repository.ListScenarioRuns(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list scenario runs", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]models.ScenarioRunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = BuildScenarioRunSummary(run)
	}

	s.sendJSON(w, models.ScenarioRunListResponse{
		Runs:     summaries,
		Total:    len(summaries),
		Page:     pageNumber(limit, offset),
		PageSize: limit,
	})
}

// handleGetScenarioRun returns a scenario run with its steps
// GET /scenarios/{id}
func (s *Server) handleGetScenarioRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.repository.GetScenarioRun(r.Context(), id)
	if err != nil {
		s.sendRepositoryError(w, "Scenario run not found", err)
		return
	}

	s.sendJSON(w, run)
}

// sendJSON writes a 200 JSON response
func (s *Server) sendJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendRepositoryError maps storage.ErrNotFound to 404 and anything else to 500
func (s *Server) sendRepositoryError(w http.ResponseWriter, notFound string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.sendError(w, notFound, http.StatusNotFound)
		return
	}
	slog.Error("Repository error", "error", err)
	s.sendError(w, "Internal server error", http.StatusInternalServerError)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
