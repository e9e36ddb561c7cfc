package orchestrator

import (
	"context"
	"log/slog"

	"contractkit/internal/metrics"
	"contractkit/internal/models"
	"contractkit/internal/services"
)

// Orchestrator fans finished invocations and deployments out to services.
// It implements contract.Observer.
type Orchestrator struct {
	services []services.Service
}

// New creates a new Orchestrator with the given services
func New(services []services.Service) *Orchestrator {
	return &Orchestrator{
		services: services,
	}
}

// ProcessInvocation runs an invocation through all registered services
func (o *Orchestrator) ProcessInvocation(ctx context.Context, inv *models.Invocation) {
	slog.Debug("Orchestrator: Processing invocation",
		"id", inv.ID,
		"function", inv.Function,
		"services_count", len(o.services),
	)

	// Execute each service in order
	for _, service := range o.services {
		if err := service.Process(ctx, inv); err != nil {
			metrics.ErrorsTotal.WithLabelValues("services").Inc()
			slog.Error("Service processing failed",
				"service", service.Name(),
				"id", inv.ID,
				"error", err,
			)
			// Continue with the other services
		}
	}
}

// InvocationFinished forwards to ProcessInvocation
func (o *Orchestrator) InvocationFinished(ctx context.Context, inv *models.Invocation) {
	o.ProcessInvocation(ctx, inv)
}

// ContractDeployed hands the deployment to every DeploymentRecorder
func (o *Orchestrator) ContractDeployed(ctx context.Context, deployment *models.Deployment) {
	for _, service := range o.services {
		recorder, ok := service.(services.DeploymentRecorder)
		if !ok {
			continue
		}
		if err := recorder.RecordDeployment(ctx, deployment); err != nil {
			metrics.ErrorsTotal.WithLabelValues("services").Inc()
			slog.Error("Deployment recording failed",
				"service", service.Name(),
				"address", deployment.Address,
				"error", err,
			)
		}
	}
}

// Services returns the list of registered services (for inspection/testing)
func (o *Orchestrator) Services() []services.Service {
	return o.services
}
