package orchestrator

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/contracts"
	"contractkit/internal/contract"
	"contractkit/internal/devnode"
	"contractkit/internal/models"
	"contractkit/internal/services"
	"contractkit/internal/signer"
	"contractkit/internal/storage"
	"contractkit/internal/transport"
)

type failingService struct {
	mu    sync.Mutex
	calls int
}

func (f *failingService) Name() string { return "failing" }

func (f *failingService) Process(ctx context.Context, inv *models.Invocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("boom")
}

func TestOrchestratorContinuesAfterServiceError(t *testing.T) {
	repo := storage.NewMemoryRepository()
	failing := &failingService{}
	o := New([]services.Service{failing, services.NewRecorderService(repo)})

	inv := &models.Invocation{ID: "a", Address: "0x01", Function: "age()", Phase: models.PhaseReturned, StartedAt: time.Now()}
	o.ProcessInvocation(context.Background(), inv)

	assert.Equal(t, 1, failing.calls)
	list, err := repo.ListInvocations(context.Background(), "0x01", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	assert.Len(t, o.Services(), 2)
}

func TestOrchestratorRecordsSessionActivity(t *testing.T) {
	node, err := devnode.New(devnode.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(node.Handler())
	client := transport.NewClient(srv.URL, transport.Options{})
	t.Cleanup(func() {
		client.Close()
		srv.Close()
		node.Close()
	})

	key, err := signer.Generate()
	require.NoError(t, err)

	repo := storage.NewMemoryRepository()
	o := New([]services.Service{services.NewRecorderService(repo), services.NewDebugService()})

	session, err := contract.NewSession(contract.Options{
		Transport:    client,
		Signer:       key,
		Gas:          contract.GasPolicy{Margin: 20},
		PollInterval: 10 * time.Millisecond,
		MaxWait:      5 * time.Second,
		Observer:     o,
	})
	require.NoError(t, err)

	ctx := context.Background()
	person, err := session.Deploy(ctx, contracts.MustGet(contracts.Person))
	require.NoError(t, err)
	_, err = person.Call(ctx, "age")
	require.NoError(t, err)

	address := person.Address().Hex()
	d, err := repo.GetDeployment(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, contracts.Person, d.ContractName)
	assert.Equal(t, key.Address().Hex(), d.Deployer)
	assert.NotZero(t, d.GasUsed)

	invocations, err := repo.ListInvocations(ctx, address, 10, 0)
	require.NoError(t, err)
	require.Len(t, invocations, 2)

	byKind := map[models.InvocationKind]*models.Invocation{}
	for _, inv := range invocations {
		byKind[inv.Kind] = inv
	}
	require.Contains(t, byKind, models.KindDeploy)
	require.Contains(t, byKind, models.KindCall)
	assert.Equal(t, models.PhaseMined, byKind[models.KindDeploy].Phase)
	assert.Equal(t, models.PhaseReturned, byKind[models.KindCall].Phase)
	assert.Equal(t, []string{"29"}, byKind[models.KindCall].Results)
}
