package execution

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/errext"
)

type testAbortKey struct{}

type testAbortController struct {
	cancel context.CancelFunc

	logger logrus.FieldLogger
	lock   sync.Mutex // only the first reason will be kept, other will be logged
	reason error      // see errext package, you can wrap errors to attach exit status, run status, etc.
}

func (tac *testAbortController) abort(err error) {
	tac.lock.Lock()
	defer tac.lock.Unlock()
	if tac.reason != nil {
		tac.logger.Debugf(
			"test abort with reason '%s' was attempted when the test was already aborted due to '%s'",
			err.Error(), tac.reason.Error(),
		)
		return
	}
	tac.reason = err
	tac.cancel()
}

func (tac *testAbortController) getReason() error {
	tac.lock.Lock()
	defer tac.lock.Unlock()
	return tac.reason
}

// NewTestRunContext returns context.Context that can be aborted by calling the
// returned function. The reason is the first error it was called with, or an
// InterruptError when the parent context was cancelled.
func NewTestRunContext(
	ctx context.Context, logger logrus.FieldLogger,
) (newCtx context.Context, abortTest func(reason error)) {
	ctx, cancel := context.WithCancel(ctx)

	controller := &testAbortController{
		cancel: cancel,
		logger: logger,
	}

	return context.WithValue(ctx, testAbortKey{}, controller), func(reason error) {
		controller.abort(reason)
	}
}

// AbortTestRun will cancel the test run context with the given reason if the
// provided context is actually a TestRunContext or a child of one.
func AbortTestRun(ctx context.Context, err error) bool {
	if x := ctx.Value(testAbortKey{}); x != nil {
		if v, ok := x.(*testAbortController); ok {
			v.abort(err)
			return true
		}
	}
	return false
}

// GetCancelReasonIfTestAborted returns a reason the Context was cancelled, if it was
// aborted with these functions. It will return nil if ctx is not an
// TestRunContext (or its children) or if it was never aborted.
func GetCancelReasonIfTestAborted(ctx context.Context) error {
	if x := ctx.Value(testAbortKey{}); x != nil {
		if v, ok := x.(*testAbortController); ok {
			if reason := v.getReason(); reason != nil {
				return reason
			}
		}
	}
	if ctx.Err() != nil {
		return &errext.InterruptError{Reason: errext.AbortTest}
	}
	return nil
}
