package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/testutils"
	"github.com/liuxd6825/k6x/lib/types"
)

func getTestConstantVUsOptions() lib.Options {
	return lib.Options{
		VUs:      null.IntFrom(10),
		Duration: types.NullDurationFrom(1 * time.Second),
	}
}

func TestConstantVUsRun(t *testing.T) {
	t.Parallel()
	var result sync.Map
	executor, es := setupExecutor(t, getTestConstantVUsOptions(),
		simpleRunner(func(ctx context.Context, vu *lib.VUContext) error {
			time.Sleep(200 * time.Millisecond)
			currIter, _ := result.LoadOrStore(vu.VUID, uint64(0))
			result.Store(vu.VUID, currIter.(uint64)+1) //nolint:forcetypeassert
			return nil
		}),
	)
	assert.Equal(t, lib.ConstantVUsType, executor.GetType())
	assert.Equal(t, "10 looping VUs for 1s", executor.Description())

	require.NoError(t, executor.Run(context.Background()))

	var totalIters uint64
	result.Range(func(key, value interface{}) bool {
		vuIters := value.(uint64) //nolint:forcetypeassert
		assert.Equal(t, uint64(5), vuIters)
		totalIters += vuIters
		return true
	})
	assert.Equal(t, uint64(50), totalIters)
	assert.Equal(t, totalIters, es.GetFullIterationCount())
}

func TestConstantVUsCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	executor, es := setupExecutor(t, lib.Options{
		VUs:      null.IntFrom(2),
		Duration: types.NullDurationFrom(time.Hour),
	}, simpleRunner(func(context.Context, *lib.VUContext) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}))

	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	require.NoError(t, executor.Run(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotZero(t, es.GetFullIterationCount())
}

func TestExecutorsNeedInitializedVUs(t *testing.T) {
	t.Parallel()
	for _, opts := range []lib.Options{getTestConstantVUsOptions(), getTestSharedIterationsOptions()} {
		es := lib.NewExecutionState(opts.WithDefaults(), nil)
		executor, err := NewExecutor(es, testutils.NewLogger(t))
		require.NoError(t, err)
		assert.ErrorContains(t, executor.Run(context.Background()), "0 VUs were initialized, but 10 are needed")
	}

	_, err := NewExecutor(lib.NewExecutionState(lib.Options{}, nil), testutils.NewLogger(t))
	assert.Error(t, err)
}
