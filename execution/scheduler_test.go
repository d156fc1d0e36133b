package execution_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/proullon/ramsql/driver"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/k6x/driver"
	"github.com/liuxd6825/k6x/driver/drivertest"
	"github.com/liuxd6825/k6x/driver/sqldb"
	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/execution"
	"github.com/liuxd6825/k6x/ext"
	jssql "github.com/liuxd6825/k6x/js/modules/k6/x/sql"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/testutils"
	"github.com/liuxd6825/k6x/lib/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunState(t testing.TB, opts lib.Options, runner lib.Runner, ns lib.Namespace) *lib.TestRunState {
	t.Helper()
	return &lib.TestRunState{
		TestPreInitState: &lib.TestPreInitState{
			Logger: testutils.NewLogger(t),
		},
		Options:   opts,
		Runner:    runner,
		Namespace: ns,
	}
}

func newScheduler(t testing.TB, opts lib.Options, lc lib.Lifecycle) *execution.Scheduler {
	t.Helper()
	s, err := execution.NewScheduler(newTestRunState(t, opts, lib.NewFuncRunner(lc), nil))
	require.NoError(t, err)
	return s
}

func iterations(vus, iters int64) lib.Options {
	return lib.Options{VUs: null.IntFrom(vus), Iterations: null.IntFrom(iters)}
}

func TestSchedulerSQLSetupSharedWithVUs(t *testing.T) {
	t.Parallel()

	registry := ext.NewRegistry()
	require.NoError(t, registry.Register(ext.Descriptor{
		Name:     "sql",
		Versions: []string{"1.0.0"},
		Exports: map[string]interface{}{
			"":              jssql.New(),
			"driver/ramsql": sqldb.New("ramsql"),
		},
	}))

	src := []byte(`"use k6 with k6/x/sql >= 1.0";
import sql from "k6/x/sql";
import ramsql from "k6/x/sql/driver/ramsql";
`)
	plan, err := execution.Prepare(registry, "0.52.0", testutils.NewLogger(t), "file:///scenario.js", src)
	require.NoError(t, err)

	dsn := t.Name()
	var queried atomic.Int64
	lc := lib.Lifecycle{
		Setup: func(ctx context.Context, lc *lib.Context) (interface{}, error) {
			mod, err := lc.Namespace.Require("k6/x/sql/driver/ramsql")
			if err != nil {
				return nil, err
			}
			h, err := driver.Open(ctx, mod, driver.Options{DSN: dsn})
			if err != nil {
				return nil, err
			}
			if _, err := h.Exec(`CREATE TABLE roster (name varchar NOT NULL);`); err != nil {
				return nil, err
			}
			if _, err := h.Exec(`INSERT INTO roster (name) VALUES ($1);`, "peter"); err != nil {
				return nil, err
			}
			return h, nil
		},
		Default: func(_ context.Context, vu *lib.VUContext) error {
			h, ok := vu.SetupData.(*driver.Handle)
			if !ok {
				return fmt.Errorf("unexpected setup data %T", vu.SetupData)
			}
			rows, err := h.Query(`SELECT name FROM roster;`)
			if err != nil {
				return err
			}
			all, err := rows.Collect()
			if err != nil {
				return err
			}
			if len(all) != 1 {
				return fmt.Errorf("expected one row, got %d", len(all))
			}
			if name := all[0].Get("name"); name != "peter" {
				return fmt.Errorf("expected peter, got %v", name)
			}
			queried.Add(1)
			return nil
		},
		Teardown: func(_ context.Context, lc *lib.Context) error {
			return lc.SetupData.(*driver.Handle).Close()
		},
	}

	s, err := execution.NewScheduler(newTestRunState(t, iterations(2, 4), lib.NewFuncRunner(lc), plan.Namespace))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.RunStatusDone, res.Status)
	assert.Equal(t, uint64(4), res.FullIterations)
	assert.Zero(t, res.FailedIterations)
	assert.Equal(t, int64(4), queried.Load())

	h := s.GetState().SetupData().(*driver.Handle)
	assert.Equal(t, driver.StateClosed, h.State())
}

func TestSchedulerIterationFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("relation does not exist")
	drv := &drivertest.Driver{
		Name: "scripted",
		QueryFunc: func(_ context.Context, statement string, _ []interface{}) (*drivertest.Result, error) {
			if statement == "SELECT * FROM missing" {
				return nil, errBoom
			}
			return &drivertest.Result{Columns: []string{"n"}, Rows: [][]interface{}{{1}}}, nil
		},
	}

	lc := lib.Lifecycle{
		Setup: func(ctx context.Context, _ *lib.Context) (interface{}, error) {
			return driver.Open(ctx, drv)
		},
		Default: func(_ context.Context, vu *lib.VUContext) error {
			time.Sleep(20 * time.Millisecond)
			h := vu.SetupData.(*driver.Handle)
			statement := "SELECT n FROM present"
			if vu.VUID == 1 {
				statement = "SELECT * FROM missing"
			}
			_, err := h.Query(statement)
			return err
		},
		Teardown: func(_ context.Context, lc *lib.Context) error {
			return lc.SetupData.(*driver.Handle).Close()
		},
	}

	s := newScheduler(t, lib.Options{
		VUs:      null.IntFrom(2),
		Executor: null.StringFrom(lib.ConstantVUsType),
		Duration: types.NullDurationFrom(200 * time.Millisecond),
	}, lc)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.RunStatusDone, res.Status)
	require.NotEmpty(t, res.IterationErrors)
	for _, ierr := range res.IterationErrors {
		assert.Equal(t, uint64(1), ierr.VUID)
		assert.ErrorIs(t, ierr, errBoom)
		assert.True(t, driver.IsKind(ierr, driver.QueryError))
	}
	assert.Equal(t, res.VUIterations[1], res.FailedIterations)
	assert.NotZero(t, res.VUIterations[2])
	assert.Equal(t, int64(1), drv.Closes())
}

func TestSchedulerSetupDataIsShared(t *testing.T) {
	t.Parallel()

	type shared struct{ name string }
	data := &shared{name: "fixture"}

	var mu sync.Mutex
	seen := make(map[interface{}]int)
	lc := lib.Lifecycle{
		Setup: func(context.Context, *lib.Context) (interface{}, error) {
			return data, nil
		},
		Default: func(_ context.Context, vu *lib.VUContext) error {
			mu.Lock()
			defer mu.Unlock()
			seen[vu.SetupData]++
			return nil
		},
		Teardown: func(_ context.Context, lc *lib.Context) error {
			if lc.SetupData != data {
				return errors.New("teardown got different setup data")
			}
			return nil
		},
	}

	res, err := newScheduler(t, iterations(3, 9), lc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.RunStatusDone, res.Status)
	assert.Equal(t, map[interface{}]int{data: 9}, seen)
}

func TestSchedulerSetupAndTeardownRunOnce(t *testing.T) {
	t.Parallel()

	var setups, teardowns, iters atomic.Int64
	lc := lib.Lifecycle{
		Setup: func(context.Context, *lib.Context) (interface{}, error) {
			setups.Add(1)
			return nil, nil
		},
		Default: func(context.Context, *lib.VUContext) error {
			if setups.Load() != 1 || teardowns.Load() != 0 {
				return errors.New("iteration outside of setup/teardown")
			}
			iters.Add(1)
			return nil
		},
		Teardown: func(context.Context, *lib.Context) error {
			teardowns.Add(1)
			return nil
		},
	}

	s := newScheduler(t, iterations(5, 50), lc)
	require.NoError(t, s.Init(context.Background()))
	assert.Len(t, s.GetState().VUs(), 5)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.RunStatusDone, s.Status())
	assert.Equal(t, uint64(50), res.FullIterations)
	assert.Equal(t, int64(1), setups.Load())
	assert.Equal(t, int64(1), teardowns.Load())
	assert.Equal(t, int64(50), iters.Load())

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), setups.Load())
}

func TestSchedulerSetupFailureSkipsEverything(t *testing.T) {
	t.Parallel()

	var iters, teardowns atomic.Int64
	lc := lib.Lifecycle{
		Setup: func(context.Context, *lib.Context) (interface{}, error) {
			return nil, errors.New("connection refused")
		},
		Default: func(context.Context, *lib.VUContext) error {
			iters.Add(1)
			return nil
		},
		Teardown: func(context.Context, *lib.Context) error {
			teardowns.Add(1)
			return nil
		},
	}

	res, err := newScheduler(t, iterations(2, 2), lc).Run(context.Background())
	require.Error(t, err)

	var setupErr *execution.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, execution.PhaseSetup, res.FailedPhase)
	assert.Equal(t, errext.AbortedBySetupError, res.AbortReason)
	assert.Zero(t, iters.Load())
	assert.Zero(t, teardowns.Load())

	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.ScriptException, ecerr.ExitCode())
}

func TestSchedulerSetupTimeout(t *testing.T) {
	t.Parallel()

	lc := lib.Lifecycle{
		Setup: func(ctx context.Context, _ *lib.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Default: func(context.Context, *lib.VUContext) error { return nil },
	}

	opts := iterations(1, 1)
	opts.SetupTimeout = types.NullDurationFrom(50 * time.Millisecond)
	res, err := newScheduler(t, opts, lc).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, lib.RunStatusAborted, res.Status)

	var terr lib.TimeoutError
	require.ErrorAs(t, err, &terr)
	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.SetupTimeout, ecerr.ExitCode())
}

func TestSchedulerSetupInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var iters, teardowns atomic.Int64
	lc := lib.Lifecycle{
		Setup: func(ctx context.Context, _ *lib.Context) (interface{}, error) {
			cancel()
			<-ctx.Done()
			return nil, fmt.Errorf("couldn't connect: %w", ctx.Err())
		},
		Default: func(context.Context, *lib.VUContext) error {
			iters.Add(1)
			return nil
		},
		Teardown: func(context.Context, *lib.Context) error {
			teardowns.Add(1)
			return nil
		},
	}

	res, err := newScheduler(t, iterations(1, 1), lc).Run(ctx)
	require.Error(t, err)
	assert.True(t, errext.IsInterruptError(err), err.Error())
	var setupErr *execution.SetupError
	assert.False(t, errors.As(err, &setupErr))

	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, execution.PhaseSetup, res.FailedPhase)
	assert.Equal(t, errext.AbortedByUser, res.AbortReason)
	assert.Zero(t, iters.Load())
	assert.Zero(t, teardowns.Load())

	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.ExternalAbort, ecerr.ExitCode())
}

func TestSchedulerTeardownFailure(t *testing.T) {
	t.Parallel()

	lc := lib.Lifecycle{
		Default: func(context.Context, *lib.VUContext) error { return nil },
		Teardown: func(context.Context, *lib.Context) error {
			return errors.New("close failed")
		},
	}

	res, err := newScheduler(t, iterations(1, 3), lc).Run(context.Background())
	var teardownErr *execution.TeardownError
	require.ErrorAs(t, err, &teardownErr)
	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, execution.PhaseTeardown, res.FailedPhase)
	assert.Equal(t, uint64(3), res.FullIterations)
}

func TestSchedulerNoSetupNoTeardown(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	lc := lib.Lifecycle{
		Setup: func(context.Context, *lib.Context) (interface{}, error) {
			calls.Add(1)
			return nil, nil
		},
		Default: func(context.Context, *lib.VUContext) error { return nil },
		Teardown: func(context.Context, *lib.Context) error {
			calls.Add(1)
			return nil
		},
	}

	opts := iterations(1, 1)
	opts.NoSetup = null.BoolFrom(true)
	opts.NoTeardown = null.BoolFrom(true)
	res, err := newScheduler(t, opts, lc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.RunStatusDone, res.Status)
	assert.Zero(t, calls.Load())
}

func TestSchedulerCancellationStillRunsTeardown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var once sync.Once
	var teardowns atomic.Int64
	lc := lib.Lifecycle{
		Default: func(context.Context, *lib.VUContext) error {
			once.Do(func() { close(started) })
			time.Sleep(10 * time.Millisecond)
			return nil
		},
		Teardown: func(ctx context.Context, _ *lib.Context) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			teardowns.Add(1)
			return nil
		},
	}

	s := newScheduler(t, lib.Options{
		VUs:      null.IntFrom(2),
		Duration: types.NullDurationFrom(time.Minute),
	}, lc)

	go func() {
		<-started
		cancel()
	}()

	res, err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, errext.IsInterruptError(err))
	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, errext.AbortedByUser, res.AbortReason)
	assert.Equal(t, int64(1), teardowns.Load())
	assert.NotZero(t, res.FullIterations)
}

func TestSchedulerAbortTestRun(t *testing.T) {
	t.Parallel()

	reason := errext.WithAbortReasonIfNone(errors.New("test.abort() called"), errext.AbortedByScriptError)
	var aborted atomic.Bool
	lc := lib.Lifecycle{
		Default: func(ctx context.Context, _ *lib.VUContext) error {
			if aborted.CompareAndSwap(false, true) {
				assert.True(t, execution.AbortTestRun(ctx, reason))
			}
			time.Sleep(time.Millisecond)
			return nil
		},
	}

	res, err := newScheduler(t, lib.Options{
		VUs:      null.IntFrom(1),
		Duration: types.NullDurationFrom(time.Minute),
	}, lc).Run(context.Background())
	require.ErrorIs(t, err, reason)
	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, errext.AbortedByScriptError, res.AbortReason)
}

func TestSchedulerVUInitFailure(t *testing.T) {
	t.Parallel()

	runner := &failingRunner{Runner: lib.NewFuncRunner(lib.Lifecycle{
		Default: func(context.Context, *lib.VUContext) error { return nil },
	}), failOn: 2}
	s, err := execution.NewScheduler(newTestRunState(t, iterations(3, 3), runner, nil))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad VU")
	assert.Equal(t, lib.RunStatusAborted, res.Status)
	assert.Equal(t, execution.PhaseInit, res.FailedPhase)

	var herr errext.HasHint
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "error while initializing VU #2", herr.Hint())
}

type failingRunner struct {
	lib.Runner
	failOn uint64
}

func (r *failingRunner) NewVU(ctx context.Context, id uint64, logger logrus.FieldLogger) (lib.VU, error) {
	if id == r.failOn {
		return nil, errors.New("bad VU")
	}
	return r.Runner.NewVU(ctx, id, logger)
}

func TestNewSchedulerInvalidOptions(t *testing.T) {
	t.Parallel()

	lc := lib.Lifecycle{Default: func(context.Context, *lib.VUContext) error { return nil }}
	_, err := execution.NewScheduler(newTestRunState(t, iterations(5, 2), lib.NewFuncRunner(lc), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
	assert.Equal(t, errext.AbortedByConfig, errext.GetAbortReason(err))

	_, err = execution.NewScheduler(newTestRunState(t, iterations(1, 1), lib.NewFuncRunner(lib.Lifecycle{}), nil))
	require.Error(t, err)
	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.InvalidConfig, ecerr.ExitCode())
}

func TestSchedulerSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	lc := lib.Lifecycle{
		Setup:    func(context.Context, *lib.Context) (interface{}, error) { return nil, nil },
		Default:  func(context.Context, *lib.VUContext) error { return nil },
		Teardown: func(context.Context, *lib.Context) error { return nil },
	}
	trs := newTestRunState(t, iterations(1, 1), lib.NewFuncRunner(lc), nil)
	trs.TracerProvider = tp
	trs.RunID = "run-1"
	s, err := execution.NewScheduler(trs)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"init", "setup", "iterations", "teardown", "run"}, names)
}
