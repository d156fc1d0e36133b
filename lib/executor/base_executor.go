// Package executor contains the ways a run can schedule the iterations of
// its VUs.
package executor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/lib"
)

// BaseExecutor is a helper struct that contains common properties and methods
// between the executors. It is intended to be used as an anonymous struct
// inside of the executors, for the purpose of reducing boilerplate code.
type BaseExecutor struct {
	executorType   string
	executionState *lib.ExecutionState
	logger         *logrus.Entry
}

// NewBaseExecutor returns an initialized BaseExecutor
func NewBaseExecutor(executorType string, es *lib.ExecutionState, logger logrus.FieldLogger) *BaseExecutor {
	return &BaseExecutor{
		executorType:   executorType,
		executionState: es,
		logger:         logger.WithField("executor", executorType),
	}
}

// GetType returns the executor type.
func (bs BaseExecutor) GetType() string {
	return bs.executorType
}

// GetLogger returns the executor logger entry.
func (bs BaseExecutor) GetLogger() *logrus.Entry {
	return bs.logger
}

// NewExecutor returns the executor selected by the options of es, which
// must have gone through Options.WithDefaults and Options.Validate.
func NewExecutor(es *lib.ExecutionState, logger logrus.FieldLogger) (lib.Executor, error) {
	opts := es.Options
	switch t := opts.Executor.String; t {
	case lib.ConstantVUsType:
		return &ConstantVUs{
			BaseExecutor: NewBaseExecutor(t, es, logger),
			vus:          opts.VUs.Int64,
			duration:     opts.Duration.TimeDuration(),
		}, nil
	case lib.SharedIterationsType:
		return &SharedIterations{
			BaseExecutor: NewBaseExecutor(t, es, logger),
			vus:          opts.VUs.Int64,
			iterations:   opts.Iterations.Int64,
			maxDuration:  opts.Duration.TimeDuration(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown executor type %q", t)
	}
}
