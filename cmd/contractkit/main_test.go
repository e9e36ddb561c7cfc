package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/fixtures"
	"contractkit/internal/scenario"
)

func TestSelectScenarios(t *testing.T) {
	loaded, err := scenario.LoadFixtures(fixtures.FS, ".")
	require.NoError(t, err)
	all := []scenario.Scenario{scenario.CrossCall(scenario.ModeCall)}
	for _, f := range loaded {
		all = append(all, f.AsScenario())
	}

	selected, err := selectScenarios(all, nil)
	require.NoError(t, err)
	assert.Len(t, selected, len(all))

	selected, err = selectScenarios(all, []string{"crosscall-call", "person-getters"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "crosscall-call", selected[0].Name())
	assert.Equal(t, "person-getters", selected[1].Name())

	_, err = selectScenarios(all, []string{"missing"})
	assert.Error(t, err)
}
