package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"contractkit/internal/models"
)

// MemoryRepository keeps everything in process memory. It backs the CLI
// when no DATABASE_URL is configured and the API tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	deployments map[string]*models.Deployment
	invocations map[string]*models.Invocation
	runs        map[string]*models.ScenarioRun
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		deployments: make(map[string]*models.Deployment),
		invocations: make(map[string]*models.Invocation),
		runs:        make(map[string]*models.ScenarioRun),
	}
}

func (m *MemoryRepository) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	cp := *d
	cp.ConstructorArgs = append([]string(nil), d.ConstructorArgs...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments[d.Address] = &cp
	return nil
}

func (m *MemoryRepository) GetDeployment(ctx context.Context, address string) (*models.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deployments[address]
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", address, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepository) ListDeployments(ctx context.Context, limit, offset int) ([]*models.Deployment, error) {
	m.mu.RLock()
	all := make([]*models.Deployment, 0, len(m.deployments))
	for _, d := range m.deployments {
		cp := *d
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].DeployedAt.After(all[j].DeployedAt) })
	return page(all, limit, offset), nil
}

func (m *MemoryRepository) SaveInvocation(ctx context.Context, inv *models.Invocation) error {
	cp := *inv
	cp.Args = append([]string(nil), inv.Args...)
	cp.Results = append([]string(nil), inv.Results...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocations[inv.ID] = &cp
	return nil
}

func (m *MemoryRepository) ListInvocations(ctx context.Context, address string, limit, offset int) ([]*models.Invocation, error) {
	m.mu.RLock()
	var matched []*models.Invocation
	for _, inv := range m.invocations {
		if inv.Address == address {
			cp := *inv
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })
	return page(matched, limit, offset), nil
}

func (m *MemoryRepository) SaveScenarioRun(ctx context.Context, run *models.ScenarioRun) error {
	cp := *run
	cp.Steps = append([]models.StepResult(nil), run.Steps...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.runs[run.ID] = &cp
	}
	return nil
}

func (m *MemoryRepository) GetScenarioRun(ctx context.Context, id string) (*models.ScenarioRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("scenario run %s: %w", id, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryRepository) ListScenarioRuns(ctx context.Context, limit, offset int) ([]*models.ScenarioRun, error) {
	m.mu.RLock()
	all := make([]*models.ScenarioRun, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	return page(all, limit, offset), nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
