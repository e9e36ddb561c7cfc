package scenario

import (
	"context"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/contracts"
	"contractkit/fixtures"
	"contractkit/internal/chainerr"
	"contractkit/internal/contract"
	"contractkit/internal/descriptor"
	"contractkit/internal/devnode"
	"contractkit/internal/models"
	"contractkit/internal/signer"
	"contractkit/internal/transport"
)

func newSession(t *testing.T) *contract.Session {
	t.Helper()
	node, err := devnode.New(devnode.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(node.Handler())
	client := transport.NewClient(srv.URL, transport.Options{})
	t.Cleanup(func() {
		client.Close()
		srv.Close()
		node.Close()
	})

	s, err := signer.Generate()
	require.NoError(t, err)
	session, err := contract.NewSession(contract.Options{
		Transport:    client,
		Signer:       s,
		Gas:          contract.GasPolicy{Margin: 20},
		PollInterval: 10 * time.Millisecond,
		MaxWait:      5 * time.Second,
	})
	require.NoError(t, err)
	return session
}

func registry(t *testing.T) *descriptor.Registry {
	t.Helper()
	reg, err := contracts.Load()
	require.NoError(t, err)
	return reg
}

func TestExpectationTable(t *testing.T) {
	assert.Equal(t, CalleeMutated, Expectation(ModeCall))
	assert.Equal(t, CallerMutated, Expectation(ModeCallCode))
	assert.Equal(t, CallerMutated, Expectation(ModeDelegateCall))
}

func TestParseCallMode(t *testing.T) {
	for _, m := range CallModes {
		parsed, err := ParseCallMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	mode, err := ParseCallMode("delegatecall")
	require.NoError(t, err)
	assert.Equal(t, ModeDelegateCall, mode)

	_, err = ParseCallMode("STATICCALL")
	assert.Error(t, err)
}

func TestRunCrossCall(t *testing.T) {
	session := newSession(t)
	ctx := context.Background()

	tests := []struct {
		mode         CallMode
		callerAfter  int64
		calleeAfter  int64
		wantMutation Mutation
	}{
		{ModeCall, 0, 1, CalleeMutated},
		{ModeCallCode, 1, 0, CallerMutated},
		{ModeDelegateCall, 1, 0, CallerMutated},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			result, err := RunCrossCall(ctx, session, tt.mode)
			require.NoError(t, err)
			assert.True(t, result.Passed(), result.String())
			assert.Equal(t, tt.wantMutation, result.Observed)
			assert.Zero(t, result.CallerBefore.Sign())
			assert.Zero(t, result.CalleeBefore.Sign())
			assert.Equal(t, big.NewInt(tt.callerAfter), result.CallerAfter)
			assert.Equal(t, big.NewInt(tt.calleeAfter), result.CalleeAfter)
			assert.NotEqual(t, result.Caller, result.Callee)
		})
	}
}

func TestObserve(t *testing.T) {
	zero, one := big.NewInt(0), big.NewInt(1)
	assert.Equal(t, NoMutation, observe(zero, zero, zero, zero))
	assert.Equal(t, CallerMutated, observe(zero, one, zero, zero))
	assert.Equal(t, CalleeMutated, observe(zero, zero, zero, one))
	assert.Equal(t, BothMutated, observe(zero, one, zero, one))
}

func TestEmbeddedFixturesPass(t *testing.T) {
	fs, err := LoadFixtures(fixtures.FS, ".")
	require.NoError(t, err)
	require.Len(t, fs, 6)

	scenarios := make([]Scenario, 0, len(fs)+len(CallModes))
	for _, f := range fs {
		scenarios = append(scenarios, f.AsScenario())
	}
	for _, m := range CallModes {
		scenarios = append(scenarios, CrossCall(m))
	}

	sink := &memorySink{}
	suite := NewSuite(newSession(t), registry(t), 4).WithSink(sink)
	runs, err := suite.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, runs, len(scenarios))

	for i, run := range runs {
		require.NotNil(t, run)
		assert.Equal(t, scenarios[i].Name(), run.Scenario)
		assert.True(t, run.Passed, "%s failed: %+v %s", run.Scenario, run.Failed(), run.Error)
		assert.NotEmpty(t, run.ID)
	}
	assert.True(t, Passed(runs))
	assert.Len(t, sink.runs, len(scenarios))
}

func TestFixtureFailuresAreRecorded(t *testing.T) {
	f, err := ParseFixture([]byte(`
name: wrong-expectations
contracts:
  person: Person
steps:
  - deploy: person
  - call: person.age
    expect: ["30"]
  - call: person.birthDay
    expect: ["2020-12-15"]
  - send: person.age
    expectRevert: true
`))
	require.NoError(t, err)

	suite := NewSuite(newSession(t), registry(t), 1)
	run := suite.RunOne(context.Background(), f.AsScenario())

	assert.False(t, run.Passed)
	require.Len(t, run.Steps, 4)
	assert.True(t, run.Steps[0].Passed)
	assert.False(t, run.Steps[1].Passed)
	assert.Contains(t, run.Steps[1].Detail, "expected 30, got 29")
	assert.True(t, run.Steps[2].Passed)
	assert.False(t, run.Steps[3].Passed)
	assert.Len(t, run.Failed(), 2)
}

func TestFixtureExpectRevert(t *testing.T) {
	// Caller has no inc(), so forwarding to itself fails and Caller reverts
	f, err := ParseFixture([]byte(`
name: reverts
contracts:
  caller: Caller
steps:
  - deploy: caller
  - send: caller.incCall
    args: ["${caller}"]
    expectRevert: true
  - call: caller.getCallerX
    expect: ["0"]
  - send: caller.incCall
    args: ["${sender}"]
    expectRevert: true
`))
	require.NoError(t, err)

	run := NewSuite(newSession(t), registry(t), 1).RunOne(context.Background(), f.AsScenario())
	assert.False(t, run.Passed)
	require.Len(t, run.Steps, 4)
	assert.True(t, run.Steps[1].Passed, run.Steps[1].Detail)
	assert.True(t, run.Steps[2].Passed, run.Steps[2].Detail)
	// a call to an account without code succeeds
	assert.False(t, run.Steps[3].Passed)
	assert.Contains(t, run.Steps[3].Detail, "expected transaction to revert")
}

func TestFixtureArgumentCountMismatch(t *testing.T) {
	f, err := ParseFixture([]byte(`
name: wrong-arity
contracts:
  caller: Caller
steps:
  - deploy: caller
  - send: caller.incCall
`))
	require.NoError(t, err)

	r := &fixtureRun{
		fixture:   f,
		session:   newSession(t),
		registry:  registry(t),
		instances: make(map[string]*contract.Instance),
	}
	ctx := context.Background()
	require.NoError(t, r.deploy(ctx, f.Steps[0]))

	err = r.send(ctx, f.Steps[1])
	assert.ErrorIs(t, err, chainerr.ErrArgumentCountMismatch)

	run := NewSuite(newSession(t), registry(t), 1).RunOne(ctx, f.AsScenario())
	require.Len(t, run.Steps, 2)
	assert.False(t, run.Steps[1].Passed)
	assert.Contains(t, run.Steps[1].Detail, chainerr.ErrArgumentCountMismatch.Error())
}

func TestFailedDeployStopsRun(t *testing.T) {
	f, err := ParseFixture([]byte(`
name: bad-constructor
contracts:
  interactor: Interactor
steps:
  - deploy: interactor
    args: ["a", "b"]
  - call: interactor.deployString
`))
	require.NoError(t, err)

	run := NewSuite(newSession(t), registry(t), 1).RunOne(context.Background(), f.AsScenario())
	assert.False(t, run.Passed)
	assert.Len(t, run.Steps, 1)
	assert.NotEmpty(t, run.Error)
}

func TestParseFixtureRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing name":   "contracts: {p: Person}\nsteps: [{deploy: p}]",
		"no steps":       "name: x\ncontracts: {p: Person}",
		"two actions":    "name: x\ncontracts: {p: Person}\nsteps: [{deploy: p, call: p.age}]",
		"unknown alias":  "name: x\ncontracts: {p: Person}\nsteps: [{call: q.age}]",
		"bad target":     "name: x\ncontracts: {p: Person}\nsteps: [{call: age}]",
		"send expect":    "name: x\ncontracts: {p: Person}\nsteps: [{send: p.age, expect: [\"1\"]}]",
		"unknown field":  "name: x\ncontracts: {p: Person}\nsteps: [{deploy: p, value: 1}]",
		"reserved alias": "name: x\ncontracts: {sender: Person}\nsteps: [{deploy: sender}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixture([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixturesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"b.yaml":      {Data: []byte("name: b\ncontracts: {p: Person}\nsteps: [{deploy: p}]")},
		"sub/a.yml":   {Data: []byte("name: a\ncontracts: {p: Person}\nsteps: [{deploy: p}]")},
		"ignored.txt": {Data: []byte("not yaml")},
	}
	fs, err := LoadFixtures(fsys, ".")
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, "a", fs[0].Name)
	assert.Equal(t, "b", fs[1].Name)
}

func TestCollector(t *testing.T) {
	c := NewCollector("unit")
	c.Pass("first")
	c.Failf("second", "got %d", 2)
	run := c.Finish(nil)

	assert.Equal(t, "unit", run.Scenario)
	assert.False(t, run.Passed)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, 1, run.Steps[1].Index)
	assert.Equal(t, "got 2", run.Steps[1].Detail)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	empty := NewCollector("empty").Finish(nil)
	assert.False(t, empty.Passed)
}

type memorySink struct {
	mu   sync.Mutex
	runs []*models.ScenarioRun
}

func (m *memorySink) SaveScenarioRun(ctx context.Context, run *models.ScenarioRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}
