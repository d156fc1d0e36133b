package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/lib"
)

// ConstantVUs runs all initialized VUs for a fixed duration. Every VU runs
// iterations back to back until the duration is over.
type ConstantVUs struct {
	*BaseExecutor
	vus      int64
	duration time.Duration
}

// Make sure we implement the lib.Executor interface.
var _ lib.Executor = &ConstantVUs{}

// Description returns a human-readable description of the executor options
func (clv ConstantVUs) Description() string {
	return fmt.Sprintf("%d looping VUs for %s", clv.vus, clv.duration)
}

// Run constantly loops through as many iterations as possible on a fixed
// number of VUs for the specified duration.
func (clv ConstantVUs) Run(parentCtx context.Context) error {
	vus := clv.executionState.VUs()
	if int64(len(vus)) < clv.vus {
		return fmt.Errorf("%d VUs were initialized, but %d are needed", len(vus), clv.vus)
	}

	_, durationCtx, cancel := getDurationContext(parentCtx, clv.duration)
	defer cancel()

	clv.logger.WithFields(
		logrus.Fields{"vus": clv.vus, "duration": clv.duration},
	).Debug("Starting executor run...")

	// Actually schedule the VUs and iterations...
	activeVUs := &sync.WaitGroup{}
	defer activeVUs.Wait()

	durationDone := durationCtx.Done()
	runIteration := getIterationRunner(clv.executionState, clv.logger)

	handleVU := func(vu lib.VU) {
		defer activeVUs.Done()
		for {
			select {
			case <-durationDone:
				return // don't make more iterations
			default:
				// continue looping
			}
			runIteration(durationCtx, vu)
		}
	}

	for _, vu := range vus[:clv.vus] {
		activeVUs.Add(1)
		go handleVU(vu)
	}

	return nil
}
