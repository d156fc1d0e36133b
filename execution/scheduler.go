// Package execution drives a test run through its lifecycle: VU
// initialization, setup, the iterations of the executor and teardown.
package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
	"github.com/liuxd6825/k6x/lib/executor"
)

const tracerName = "github.com/liuxd6825/k6x/execution"

// A Scheduler is in charge of the whole test execution: initializing the
// VUs, running setup() and teardown() exactly once, and running the executor
// in between.
type Scheduler struct {
	test     *lib.TestRunState
	state    *lib.ExecutionState
	executor lib.Executor
	status   lib.RunStatusTracker
	tracer   trace.Tracer
	logger   logrus.FieldLogger

	initOnce sync.Once
	initErr  error
	runOnce  sync.Once
}

// NewScheduler creates a new Scheduler, without initializing any VUs. The
// options of the test run state are completed with their defaults and
// validated.
func NewScheduler(trs *lib.TestRunState) (*Scheduler, error) {
	opts := trs.Options.WithDefaults()
	if errs := opts.Validate(); len(errs) > 0 {
		merr := multierror.Append(nil, errs...)
		merr.ErrorFormat = func(errs []error) string {
			return "invalid options: " + strings.Join(lo.Map(errs, func(e error, _ int) string {
				return e.Error()
			}), ", ")
		}
		return nil, configError(merr)
	}
	if !trs.Runner.IsExecutable(consts.DefaultFn) {
		return nil, configError(fmt.Errorf("the script doesn't define a %s function", consts.DefaultFn))
	}

	if trs.RunID == "" {
		trs.RunID = uuid.NewString()
	}
	logger := trs.Logger.WithField("run", trs.RunID)

	state := lib.NewExecutionState(opts, trs.Namespace)
	exec, err := executor.NewExecutor(state, logger.WithField("executor", opts.Executor.String))
	if err != nil {
		return nil, configError(err)
	}

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if trs.TracerProvider != nil {
		tp = trs.TracerProvider
	}

	return &Scheduler{
		test:     trs,
		state:    state,
		executor: exec,
		tracer:   tp.Tracer(tracerName),
		logger:   logger,
	}, nil
}

func configError(err error) error {
	return errext.WithAbortReasonIfNone(
		errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig),
		errext.AbortedByConfig,
	)
}

// GetState returns the execution state of the run.
func (s *Scheduler) GetState() *lib.ExecutionState {
	return s.state
}

// GetExecutor returns the executor that runs the iterations.
func (s *Scheduler) GetExecutor() lib.Executor {
	return s.executor
}

// Status returns the current status of the run.
func (s *Scheduler) Status() lib.RunStatus {
	return s.status.Get()
}

// RunID returns the unique identifier of the run.
func (s *Scheduler) RunID() string {
	return s.test.RunID
}

func (s *Scheduler) initVU(ctx context.Context, id uint64, logger logrus.FieldLogger) (lib.VU, error) {
	vu, err := s.test.Runner.NewVU(ctx, id, logger.WithField("vu", id))
	if err != nil {
		return nil, errext.WithHint(err, fmt.Sprintf("error while initializing VU #%d", id))
	}
	logger.Debugf("Initialized VU #%d", id)
	return vu, nil
}

// Init concurrently initializes all of the VUs. It is done at most once;
// later calls return the result of the first one.
func (s *Scheduler) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.initVUs(ctx)
	})
	return s.initErr
}

func (s *Scheduler) initVUs(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "init", trace.WithAttributes(
		attribute.String("k6x.run_id", s.test.RunID),
		attribute.Int64("k6x.vus", s.state.Options.VUs.Int64),
	))
	defer func() { endSpan(span, err) }()

	logger := s.logger.WithField("phase", "execution-scheduler-init")
	count := uint64(s.state.Options.VUs.Int64)
	logger.WithField("neededVUs", count).Debug("Start of initialization")

	vus := make([]lib.VU, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := uint64(0); i < count; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vu, err := s.initVU(gctx, i+1, logger)
			if err != nil {
				return err
			}
			vus[i] = vu
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		if interruptErr := GetCancelReasonIfTestAborted(ctx); interruptErr != nil {
			logger.Debugf("The test run was interrupted, returning '%s' instead of '%s'", interruptErr, err)
			err = interruptErr
		}
		err = errext.WithAbortReasonIfNone(err, errext.AbortedByScriptError)
		_ = s.status.Transition(lib.RunStatusAborted)
		return err
	}

	for _, vu := range vus {
		s.state.AddInitializedVU(vu)
	}
	logger.Debugf("Initialization completed")
	return nil
}

// Run initializes the VUs if Init wasn't called yet, then runs setup, the
// iterations and teardown, in this order. A run can happen only once.
//
// The returned Result is never nil. The error is the reason the run was
// aborted, or nil if it finished as Done.
func (s *Scheduler) Run(ctx context.Context) (result *Result, err error) {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		err = errors.New("the test run was already started")
		return s.newResult(PhaseInit, err), err
	}

	ctx, span := s.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("k6x.run_id", s.test.RunID),
		attribute.String("k6x.executor", s.executor.GetType()),
	))
	defer func() {
		span.SetAttributes(attribute.String("k6x.status", result.Status.String()))
		endSpan(span, err)
	}()

	if err = s.Init(ctx); err != nil {
		return s.newResult(PhaseInit, err), err
	}

	// The run context is cancelled by the caller or by AbortTestRun, while
	// teardown gets a context that outlives it.
	runCtx, abortRun := NewTestRunContext(ctx, s.logger)
	defer abortRun(&errext.InterruptError{Reason: errext.AbortTest})
	globalCtx := context.WithoutCancel(ctx)

	logger := s.logger.WithField("phase", "execution-scheduler-run")
	lc := &lib.Context{
		RunID:     s.test.RunID,
		Namespace: s.test.Namespace,
		Logger:    logger,
	}

	if err = s.status.Transition(lib.RunStatusSetupRunning); err != nil {
		return s.newResult(PhaseSetup, err), err
	}
	if err = s.runSetup(runCtx, lc); err != nil {
		return s.abort(PhaseSetup, err)
	}

	if err = s.status.Transition(lib.RunStatusIterationsRunning); err != nil {
		return s.newResult(PhaseIterations, err), err
	}
	execErr := s.runIterations(runCtx)

	// Teardown runs even after an interruption or an executor error, once
	// all VUs are stopped.
	if err = s.status.Transition(lib.RunStatusTeardownRunning); err != nil {
		return s.newResult(PhaseTeardown, err), err
	}
	lc.SetupData = s.state.SetupData()
	if err = s.runTeardown(globalCtx, lc); err != nil {
		return s.abort(PhaseTeardown, err)
	}

	if interruptErr := GetCancelReasonIfTestAborted(runCtx); interruptErr != nil {
		logger.Debugf("The test run was interrupted: %s", interruptErr)
		return s.abort(PhaseIterations, interruptErr)
	}
	if execErr != nil {
		return s.abort(PhaseIterations, errext.WithAbortReasonIfNone(
			errext.WithExitCodeIfNone(execErr, exitcodes.GenericEngine), errext.AbortedByScriptError))
	}

	if err = s.status.Transition(lib.RunStatusDone); err != nil {
		return s.newResult(PhaseTeardown, err), err
	}
	logger.Debug("Test run finished")
	return s.newResult("", nil), nil
}

func (s *Scheduler) runSetup(ctx context.Context, lc *lib.Context) (err error) {
	opts := s.state.Options
	if opts.NoSetup.Bool || !s.test.Runner.IsExecutable(consts.SetupFn) {
		s.logger.Debug("Skipping setup()")
		return nil
	}

	ctx, span := s.tracer.Start(ctx, consts.SetupFn)
	defer func() { endSpan(span, err) }()

	timeout := opts.SetupTimeout.TimeDuration()
	setupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Running setup()")
	data, err := s.test.Runner.Setup(setupCtx, lc)
	if err != nil {
		if interruptErr := GetCancelReasonIfTestAborted(ctx); interruptErr != nil {
			s.logger.Debugf("setup() was interrupted, returning '%s' instead of '%s'", interruptErr, err)
			return interruptErr
		}
		if errors.Is(setupCtx.Err(), context.DeadlineExceeded) {
			err = lib.NewTimeoutError(consts.SetupFn, timeout)
		}
		return &SetupError{Err: err}
	}
	s.state.SetSetupData(data)
	return nil
}

func (s *Scheduler) runIterations(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "iterations", trace.WithAttributes(
		attribute.String("k6x.executor", s.executor.GetType()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int64("k6x.iterations.full", int64(s.state.GetFullIterationCount())),
			attribute.Int64("k6x.iterations.failed", int64(s.state.GetFailedIterationCount())),
			attribute.Int64("k6x.iterations.dropped", int64(s.state.GetDroppedIterationCount())),
		)
		endSpan(span, err)
	}()

	logger := s.executor.GetLogger()
	logger.Debugf("Starting executor: %s", s.executor.Description())

	s.state.MarkStarted()
	defer s.state.MarkEnded()

	// the executor should handle context cancel itself
	err = s.executor.Run(ctx)
	if err == nil {
		logger.Debug("Executor finished successfully")
	} else {
		logger.WithError(err).Error("Executor error")
	}
	return err
}

func (s *Scheduler) runTeardown(ctx context.Context, lc *lib.Context) (err error) {
	opts := s.state.Options
	if opts.NoTeardown.Bool || !s.test.Runner.IsExecutable(consts.TeardownFn) {
		s.logger.Debug("Skipping teardown()")
		return nil
	}

	ctx, span := s.tracer.Start(ctx, consts.TeardownFn)
	defer func() { endSpan(span, err) }()

	timeout := opts.TeardownTimeout.TimeDuration()
	teardownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Running teardown()")
	if err = s.test.Runner.Teardown(teardownCtx, lc); err != nil {
		if errors.Is(teardownCtx.Err(), context.DeadlineExceeded) {
			err = lib.NewTimeoutError(consts.TeardownFn, timeout)
		}
		return &TeardownError{Err: err}
	}
	return nil
}

func (s *Scheduler) abort(phase string, err error) (*Result, error) {
	if terr := s.status.Transition(lib.RunStatusAborted); terr != nil {
		s.logger.WithError(terr).Debug("Couldn't mark the run as aborted")
	}
	s.logger.WithField("phase", phase).WithError(err).Debug("Test run aborted")
	return s.newResult(phase, err), err
}

func (s *Scheduler) newResult(failedPhase string, err error) *Result {
	res := &Result{
		RunID:             s.test.RunID,
		Status:            s.status.Get(),
		FailedPhase:       failedPhase,
		Err:               err,
		FullIterations:    s.state.GetFullIterationCount(),
		FailedIterations:  s.state.GetFailedIterationCount(),
		DroppedIterations: s.state.GetDroppedIterationCount(),
		VUIterations:      s.state.VUIterations(),
		IterationErrors:   s.state.IterationErrors(),
		Duration:          s.state.GetCurrentTestRunDuration(),
	}
	if err != nil {
		res.AbortReason = errext.GetAbortReason(err)
	}
	return res
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
