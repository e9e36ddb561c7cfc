package services

import (
	"context"
	"fmt"
	"log/slog"

	"contractkit/internal/models"
	"contractkit/internal/storage"
)

// RecorderService persists deployments and finished invocations
type RecorderService struct {
	repository storage.Repository
}

// NewRecorderService creates a new RecorderService instance
func NewRecorderService(repository storage.Repository) *RecorderService {
	return &RecorderService{repository: repository}
}

// Name returns the service name
func (s *RecorderService) Name() string { return "RecorderService" }

// Process saves the invocation
func (s *RecorderService) Process(ctx context.Context, inv *models.Invocation) error {
	if err := s.repository.SaveInvocation(ctx, inv); err != nil {
		return fmt.Errorf("failed to save invocation %s: %w", inv.ID, err)
	}
	slog.Debug("RecorderService: Invocation saved",
		"id", inv.ID,
		"address", inv.Address,
		"phase", inv.Phase,
	)
	return nil
}

// RecordDeployment saves the deployment
func (s *RecorderService) RecordDeployment(ctx context.Context, d *models.Deployment) error {
	if err := s.repository.SaveDeployment(ctx, d); err != nil {
		return fmt.Errorf("failed to save deployment %s: %w", d.Address, err)
	}
	slog.Info("RecorderService: Deployment saved",
		"address", d.Address,
		"contract", d.ContractName,
		"tx_hash", d.TxHash,
	)
	return nil
}
