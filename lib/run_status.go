package lib

import (
	"fmt"
	"sync"
)

// RunStatus is the state of a test run. A run only moves forward through
// Init, SetupRunning, IterationsRunning, TeardownRunning and Done, and can be
// Aborted from any non-final state.
type RunStatus uint8

// Possible run status values.
const (
	RunStatusInit RunStatus = iota
	RunStatusSetupRunning
	RunStatusIterationsRunning
	RunStatusTeardownRunning
	RunStatusDone
	RunStatusAborted
)

func (rs RunStatus) String() string {
	switch rs {
	case RunStatusInit:
		return "init"
	case RunStatusSetupRunning:
		return "setup running"
	case RunStatusIterationsRunning:
		return "iterations running"
	case RunStatusTeardownRunning:
		return "teardown running"
	case RunStatusDone:
		return "done"
	case RunStatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("RunStatus(%d)", uint8(rs))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (rs RunStatus) MarshalText() ([]byte, error) {
	return []byte(rs.String()), nil
}

// IsFinal reports whether no transition can leave the status.
func (rs RunStatus) IsFinal() bool {
	return rs == RunStatusDone || rs == RunStatusAborted
}

// CanTransition reports whether a run in status rs may move to next.
func (rs RunStatus) CanTransition(next RunStatus) bool {
	if rs.IsFinal() {
		return false
	}
	if next == RunStatusAborted {
		return true
	}
	switch rs {
	case RunStatusInit:
		return next == RunStatusSetupRunning
	case RunStatusSetupRunning:
		return next == RunStatusIterationsRunning
	case RunStatusIterationsRunning:
		return next == RunStatusTeardownRunning
	case RunStatusTeardownRunning:
		return next == RunStatusDone
	default:
		return false
	}
}

// InvalidTransitionError is returned for a transition the run state machine
// doesn't allow.
type InvalidTransitionError struct {
	From, To RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid run status transition from %q to %q", e.From, e.To)
}

// RunStatusTracker holds the status of a run and guards its transitions.
// The zero value is in RunStatusInit.
type RunStatusTracker struct {
	mu     sync.RWMutex
	status RunStatus
}

// Get returns the current status.
func (t *RunStatusTracker) Get() RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Transition moves the run to next, if that is allowed from the current status.
func (t *RunStatusTracker) Transition(next RunStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.CanTransition(next) {
		return &InvalidTransitionError{From: t.status, To: next}
	}
	t.status = next
	return nil
}
