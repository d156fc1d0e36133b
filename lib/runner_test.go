package lib

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib/consts"
)

func TestAggregateLifecycle(t *testing.T) {
	t.Parallel()

	shared := Lifecycle{
		Setup:    func(context.Context, *Context) (interface{}, error) { return "db", nil },
		Teardown: func(context.Context, *Context) error { return nil },
	}
	local := Lifecycle{
		Default: func(context.Context, *VUContext) error { return nil },
	}

	lc, err := AggregateLifecycle(shared, local)
	require.NoError(t, err)
	assert.NotNil(t, lc.Setup)
	assert.NotNil(t, lc.Default)
	assert.NotNil(t, lc.Teardown)

	data, err := lc.Setup(context.Background(), &Context{})
	require.NoError(t, err)
	assert.Equal(t, "db", data)
}

func TestAggregateLifecycleConflict(t *testing.T) {
	t.Parallel()

	setup := func(context.Context, *Context) (interface{}, error) { return nil, nil } //nolint:nilnil
	_, err := AggregateLifecycle(Lifecycle{Setup: setup}, Lifecycle{Setup: setup})
	require.ErrorIs(t, err, ErrLifecycleConflict)
	assert.Contains(t, err.Error(), consts.SetupFn)

	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.InvalidConfig, ecerr.ExitCode())
	assert.Equal(t, errext.AbortedByConfig, errext.GetAbortReason(err))
}

func TestFuncRunner(t *testing.T) {
	t.Parallel()

	errIter := errors.New("iteration failed")
	r := NewFuncRunner(Lifecycle{
		Default: func(_ context.Context, vu *VUContext) error {
			if vu.Iteration > 0 {
				return errIter
			}
			return nil
		},
	})
	assert.True(t, r.IsExecutable(consts.DefaultFn))
	assert.False(t, r.IsExecutable(consts.SetupFn))
	assert.False(t, r.IsExecutable(consts.TeardownFn))
	assert.False(t, r.IsExecutable("handleSummary"))

	data, err := r.Setup(context.Background(), &Context{})
	require.NoError(t, err)
	assert.Nil(t, data)
	require.NoError(t, r.Teardown(context.Background(), &Context{}))

	vu, err := r.NewVU(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), vu.ID())
	require.NoError(t, vu.RunOnce(context.Background(), &VUContext{VUID: 3}))
	require.ErrorIs(t, vu.RunOnce(context.Background(), &VUContext{VUID: 3, Iteration: 1}), errIter)

	_, err = NewFuncRunner(Lifecycle{}).NewVU(context.Background(), 1, nil)
	require.Error(t, err)
}
