package services

import (
	"context"

	"contractkit/internal/models"
)

// Service defines the interface that all specialized services must implement
type Service interface {
	// Process handles a single finished invocation.
	// Returns an error only when the invocation could not be handled;
	// the orchestrator logs it and carries on with the other services.
	Process(ctx context.Context, inv *models.Invocation) error

	// Name returns the service name for logging
	Name() string
}

// DeploymentRecorder is an optional interface for services that also want
// confirmed deployments
type DeploymentRecorder interface {
	RecordDeployment(ctx context.Context, deployment *models.Deployment) error
}
