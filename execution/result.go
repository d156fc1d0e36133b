package execution

import (
	"time"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/lib"
)

// Lifecycle phases of a run, as reported in Result.FailedPhase.
const (
	PhaseInit       = "init"
	PhaseSetup      = "setup"
	PhaseIterations = "iterations"
	PhaseTeardown   = "teardown"
)

// Result is the outcome of a test run.
type Result struct {
	RunID  string        `json:"runId"`
	Status lib.RunStatus `json:"status"`

	// FailedPhase and AbortReason are only set when the run was aborted.
	FailedPhase string             `json:"failedPhase,omitempty"`
	AbortReason errext.AbortReason `json:"-"`
	Err         error              `json:"-"`

	FullIterations    uint64            `json:"fullIterations"`
	FailedIterations  uint64            `json:"failedIterations"`
	DroppedIterations uint64            `json:"droppedIterations"`
	VUIterations      map[uint64]uint64 `json:"vuIterations"`

	IterationErrors []*lib.IterationError `json:"-"`
	Duration        time.Duration         `json:"duration"`
}

// Aborted reports whether the run ended in the Aborted status.
func (r *Result) Aborted() bool {
	return r.Status == lib.RunStatusAborted
}
