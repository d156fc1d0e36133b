package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/lib"
)

// getIterationRunner is a helper function that returns an iteration executor
// closure. It takes care of updating the execution state statistics and
// logging iteration errors.
//
// Iterations run with a context that isn't cancelled together with ctx, so
// that a running statement always finishes normally. Stopping only means
// that no new iterations are started.
func getIterationRunner(
	executionState *lib.ExecutionState, logger *logrus.Entry,
) func(context.Context, lib.VU) {
	return func(ctx context.Context, vu lib.VU) {
		iter := executionState.NextIteration(vu.ID())
		vuLogger := logger.WithFields(logrus.Fields{"vu": vu.ID(), "iteration": iter})
		vuCtx := &lib.VUContext{
			VUID:      vu.ID(),
			Iteration: iter,
			SetupData: executionState.SetupData(),
			Namespace: executionState.Namespace,
			Logger:    vuLogger,
		}

		err := runOnce(context.WithoutCancel(ctx), vu, vuCtx)
		executionState.AddFullIterations(1)
		if err == nil {
			return
		}

		executionState.AddIterationError(&lib.IterationError{VUID: vu.ID(), Iteration: iter, Err: err})
		msg, fields := errext.Format(err)
		vuLogger.WithFields(fields).Error(msg)
	}
}

func runOnce(ctx context.Context, vu lib.VU, vuCtx *lib.VUContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("a panic occurred during the iteration: %v", r)
		}
	}()
	return vu.RunOnce(ctx, vuCtx)
}

// getDurationContext is used to create a sub-context that restricts an
// executor to only start iterations for its allotted time. If the whole test
// is aborted, the parent context will be cancelled, so that will also cancel
// this context, thus the "general abort" case is handled transparently.
func getDurationContext(parentCtx context.Context, duration time.Duration) (
	startTime time.Time, durationCtx context.Context, cancel func(),
) {
	startTime = time.Now()
	durationCtx, cancel = context.WithDeadline(parentCtx, startTime.Add(duration))
	return startTime, durationCtx, cancel
}
