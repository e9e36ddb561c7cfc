package storage

import (
	"context"
	"errors"

	"contractkit/internal/models"
)

// ErrNotFound is returned by getters when no row matches
var ErrNotFound = errors.New("not found")

// Repository defines the interface for all storage operations
type Repository interface {
	// Deployments
	SaveDeployment(ctx context.Context, deployment *models.Deployment) error
	GetDeployment(ctx context.Context, address string) (*models.Deployment, error)
	ListDeployments(ctx context.Context, limit, offset int) ([]*models.Deployment, error)

	// Invocations
	SaveInvocation(ctx context.Context, invocation *models.Invocation) error
	ListInvocations(ctx context.Context, address string, limit, offset int) ([]*models.Invocation, error)

	// Scenario runs
	SaveScenarioRun(ctx context.Context, run *models.ScenarioRun) error
	GetScenarioRun(ctx context.Context, id string) (*models.ScenarioRun, error)
	ListScenarioRuns(ctx context.Context, limit, offset int) ([]*models.ScenarioRun, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
