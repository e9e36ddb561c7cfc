package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltins(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{Caller, Callee, Person, ChoiceEnum, Interactor}, reg.Names())

	for _, name := range reg.Names() {
		d, err := reg.Get(name)
		require.NoError(t, err)
		assert.NotEmpty(t, d.Bytecode(), name)
		assert.NotEmpty(t, d.Functions(), name)
	}
}

func TestCrossCallFunctions(t *testing.T) {
	caller := MustGet(Caller)
	for _, fn := range []string{"incCall", "incCallCode", "incDelegateCall", "getCallerX"} {
		_, err := caller.Function(fn)
		assert.NoError(t, err, fn)
	}
	_, err := MustGet(Callee).Function("getCalleeX")
	assert.NoError(t, err)
}

func TestInteractorDefaultConstructorArgs(t *testing.T) {
	args := MustGet(Interactor).ConstructorArgs()
	require.Len(t, args, 1)
	assert.Equal(t, "Deploy string", args[0].String())
}

func TestMustGetPanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { MustGet("Nope") })
}
