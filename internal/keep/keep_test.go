package keep

import (
	"context"
	"testing"

	"github.com/bytecodealliance/wasmtime-go/v27"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkeep/wasmkeep/internal/descriptors"
	"github.com/wasmkeep/wasmkeep/internal/wasihost"
)

func TestBuildEnvBindsFDCountAndNamesBeforeUserEnv(t *testing.T) {
	names := []string{"stdin", "stdout"}
	user := []descriptors.EnvVar{{Name: "LOG_LEVEL", Value: "debug"}}

	env := buildEnv(names, user)

	require.Len(t, env, 3)
	assert.Equal(t, "FD_COUNT=2", env[0])
	assert.Equal(t, "FD_NAMES=stdin:stdout", env[1])
	assert.Equal(t, "LOG_LEVEL=debug", env[2])
}

func TestIssueIdentitySelfSignedPath(t *testing.T) {
	k := New(nil)
	material, err := k.issueIdentity(context.Background(), descriptors.Config{})
	require.NoError(t, err)
	require.Len(t, material.Chain, 1)
	assert.Equal(t, material.PrivateKey.Public(), material.Chain[0].PublicKey)
}

func TestInvokeNormalReturnSucceeds(t *testing.T) {
	restore := callEntry
	defer func() { callEntry = restore }()
	callEntry = func(store wasmtime.Storelike, fn *wasmtime.Func) (any, error) {
		return []wasmtime.Val{wasmtime.ValI32(0)}, nil
	}

	k := New(nil)
	results, trapped, exitCode, err := k.invoke(nil, nil)
	require.NoError(t, err)
	assert.False(t, trapped)
	assert.Nil(t, exitCode)
	assert.Len(t, results, 1)
}

func TestInvokeExitZeroIsSuccess(t *testing.T) {
	restore := callEntry
	defer func() { callEntry = restore }()
	callEntry = func(store wasmtime.Storelike, fn *wasmtime.Func) (any, error) {
		panic(wasihost.ExitError{Code: 0})
	}

	k := New(nil)
	_, trapped, exitCode, err := k.invoke(nil, nil)
	require.NoError(t, err)
	assert.True(t, trapped)
	require.NotNil(t, exitCode)
	assert.Equal(t, int32(0), *exitCode)
}

func TestInvokeExitNonZeroIsFailure(t *testing.T) {
	restore := callEntry
	defer func() { callEntry = restore }()
	callEntry = func(store wasmtime.Storelike, fn *wasmtime.Func) (any, error) {
		panic(wasihost.ExitError{Code: 1})
	}

	k := New(nil)
	_, trapped, exitCode, err := k.invoke(nil, nil)
	require.Error(t, err)
	assert.True(t, trapped)
	require.NotNil(t, exitCode)
	assert.Equal(t, int32(1), *exitCode)
}

func TestInvokeUnsupportedSyscallTraps(t *testing.T) {
	restore := callEntry
	defer func() { callEntry = restore }()
	callEntry = func(store wasmtime.Storelike, fn *wasmtime.Func) (any, error) {
		panic(wasmtime.NewTrap("sock_recv unsupported"))
	}

	k := New(nil)
	_, trapped, _, err := k.invoke(nil, nil)
	require.Error(t, err)
	assert.True(t, trapped)
}

func TestStateMachineRejectsOutOfOrderTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	assert.Equal(t, PhaseIdle, sm.Phase())
	assert.Error(t, sm.Transition(PhaseRunning))
	assert.NoError(t, sm.Transition(PhaseIssuing))
	assert.NoError(t, sm.Transition(PhaseProvisioning))
	assert.NoError(t, sm.Transition(PhaseRunning))
	assert.NoError(t, sm.Transition(PhaseDone))
	assert.False(t, sm.CanTransition(PhaseIssuing), "Done is terminal")
}
