package services

import (
	"context"

	"contractkit/internal/debug"
	"contractkit/internal/models"
)

// DebugService dumps invocations and deployments to the debug log
type DebugService struct{}

// NewDebugService creates a new DebugService instance
func NewDebugService() *DebugService { return &DebugService{} }

func (s *DebugService) Name() string { return "DebugService" }

func (s *DebugService) Process(ctx context.Context, inv *models.Invocation) error {
	debug.PrintInvocation(inv)
	return nil
}

func (s *DebugService) RecordDeployment(ctx context.Context, d *models.Deployment) error {
	debug.PrintDeployment(d)
	return nil
}
