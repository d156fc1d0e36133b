package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/lib"
)

// SharedIterations executes a specific total number of iterations, which are
// all shared by the configured VUs.
type SharedIterations struct {
	*BaseExecutor
	vus         int64
	iterations  int64
	maxDuration time.Duration
}

// Make sure we implement the lib.Executor interface.
var _ lib.Executor = &SharedIterations{}

// Description returns a human-readable description of the executor options
func (si SharedIterations) Description() string {
	return fmt.Sprintf("%d iterations shared among %d VUs (maxDuration: %s)", si.iterations, si.vus, si.maxDuration)
}

// Run executes a specific total number of iterations, which are all shared by
// the configured VUs.
func (si SharedIterations) Run(parentCtx context.Context) error {
	vus := si.executionState.VUs()
	if int64(len(vus)) < si.vus {
		return fmt.Errorf("%d VUs were initialized, but %d are needed", len(vus), si.vus)
	}

	_, durationCtx, cancel := getDurationContext(parentCtx, si.maxDuration)
	defer cancel()

	si.logger.WithFields(logrus.Fields{
		"vus": si.vus, "iterations": si.iterations, "maxDuration": si.maxDuration,
	}).Debug("Starting executor run...")

	totalIters := uint64(si.iterations)
	var attemptedIters uint64

	// Actually schedule the VUs and iterations...
	activeVUs := &sync.WaitGroup{}
	defer func() {
		activeVUs.Wait()
		if attempted := atomic.LoadUint64(&attemptedIters); attempted < totalIters {
			si.executionState.AddDroppedIterations(totalIters - attempted)
		}
	}()

	durationDone := durationCtx.Done()
	runIteration := getIterationRunner(si.executionState, si.logger)

	handleVU := func(vu lib.VU) {
		defer activeVUs.Done()
		for {
			select {
			case <-durationDone:
				return // don't make more iterations
			default:
				// continue looping
			}

			// undo increments past the budget, so attemptedIters ends up
			// as the number of started iterations
			if atomic.AddUint64(&attemptedIters, 1) > totalIters {
				atomic.AddUint64(&attemptedIters, ^uint64(0))
				return
			}
			runIteration(durationCtx, vu)
		}
	}

	for _, vu := range vus[:si.vus] {
		activeVUs.Add(1)
		go handleVU(vu)
	}

	return nil
}
