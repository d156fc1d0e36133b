package lib

import (
	"context"

	"github.com/sirupsen/logrus"
)

// An Executor schedules the iterations of the initialized VUs of a run.
type Executor interface {
	GetType() string
	GetLogger() *logrus.Entry

	// Description is a human readable summary of what the executor will do.
	Description() string

	// Run blocks until no VU runs an iteration anymore. New iterations stop
	// being started when ctx is done, but running ones are not interrupted.
	Run(ctx context.Context) error
}
