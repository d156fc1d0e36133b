package lib

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MaxRecordedIterationErrors caps how many iteration errors a run keeps for
// its result. All of them are still counted and logged.
const MaxRecordedIterationErrors = 100

// IterationError is an error returned by one iteration of one VU. It is
// never fatal to the run.
type IterationError struct {
	VUID      uint64
	Iteration int64
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("VU %d, iteration %d: %s", e.VUID, e.Iteration, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

// ExecutionState holds the state shared by the scheduler and the executor
// during a run: the initialized VUs, the setup data and the iteration
// counters. Counters are safe for concurrent use.
type ExecutionState struct {
	Options   Options
	Namespace Namespace

	vus []VU

	setupDataOnce sync.Once
	setupData     interface{}

	fullIterations    uint64
	failedIterations  uint64
	droppedIterations uint64
	vuIterations      sync.Map // VU ID -> *uint64

	errorsMx sync.Mutex
	errors   []*IterationError

	startTime atomic.Int64
	endTime   atomic.Int64
}

// NewExecutionState returns the execution state of a run with the given options.
func NewExecutionState(opts Options, ns Namespace) *ExecutionState {
	return &ExecutionState{Options: opts, Namespace: ns}
}

// AddInitializedVU adds a VU to the pool. It must not be called once
// iterations have started.
func (es *ExecutionState) AddInitializedVU(vu VU) {
	es.vus = append(es.vus, vu)
	es.vuIterations.Store(vu.ID(), new(uint64))
}

// VUs returns the initialized VUs, ordered by ID.
func (es *ExecutionState) VUs() []VU {
	return es.vus
}

// SetSetupData stores what setup returned. Only the first call has an effect.
func (es *ExecutionState) SetSetupData(data interface{}) {
	es.setupDataOnce.Do(func() {
		es.setupData = data
	})
}

// SetupData returns what setup returned.
func (es *ExecutionState) SetupData() interface{} {
	return es.setupData
}

// NextIteration returns the index of the next iteration of the VU, starting
// from 0.
func (es *ExecutionState) NextIteration(vuID uint64) int64 {
	v, _ := es.vuIterations.LoadOrStore(vuID, new(uint64))
	return int64(atomic.AddUint64(v.(*uint64), 1) - 1) //nolint:forcetypeassert
}

// AddFullIterations counts iterations that ran to the end, failed or not.
func (es *ExecutionState) AddFullIterations(count uint64) uint64 {
	return atomic.AddUint64(&es.fullIterations, count)
}

// AddDroppedIterations counts iterations of an iteration budget that were
// never started, because the run stopped before.
func (es *ExecutionState) AddDroppedIterations(count uint64) uint64 {
	return atomic.AddUint64(&es.droppedIterations, count)
}

// AddIterationError counts a failed iteration and keeps its error, up to
// MaxRecordedIterationErrors of them.
func (es *ExecutionState) AddIterationError(err *IterationError) uint64 {
	n := atomic.AddUint64(&es.failedIterations, 1)
	es.errorsMx.Lock()
	if len(es.errors) < MaxRecordedIterationErrors {
		es.errors = append(es.errors, err)
	}
	es.errorsMx.Unlock()
	return n
}

// GetFullIterationCount returns the number of iterations that ran to the end.
func (es *ExecutionState) GetFullIterationCount() uint64 {
	return atomic.LoadUint64(&es.fullIterations)
}

// GetFailedIterationCount returns the number of iterations that returned an error.
func (es *ExecutionState) GetFailedIterationCount() uint64 {
	return atomic.LoadUint64(&es.failedIterations)
}

// GetDroppedIterationCount returns the number of dropped iterations.
func (es *ExecutionState) GetDroppedIterationCount() uint64 {
	return atomic.LoadUint64(&es.droppedIterations)
}

// IterationErrors returns a copy of the recorded iteration errors.
func (es *ExecutionState) IterationErrors() []*IterationError {
	es.errorsMx.Lock()
	defer es.errorsMx.Unlock()
	return append([]*IterationError(nil), es.errors...)
}

// VUIterations returns the number of iterations started by each VU.
func (es *ExecutionState) VUIterations() map[uint64]uint64 {
	result := make(map[uint64]uint64)
	es.vuIterations.Range(func(key, value interface{}) bool {
		result[key.(uint64)] = atomic.LoadUint64(value.(*uint64)) //nolint:forcetypeassert
		return true
	})
	return result
}

// MarkStarted records the start of the iterations.
func (es *ExecutionState) MarkStarted() {
	es.startTime.Store(time.Now().UnixNano())
}

// MarkEnded records the end of the iterations.
func (es *ExecutionState) MarkEnded() {
	es.endTime.Store(time.Now().UnixNano())
}

// GetCurrentTestRunDuration returns how long iterations ran, or have been
// running if they haven't ended yet.
func (es *ExecutionState) GetCurrentTestRunDuration() time.Duration {
	start := es.startTime.Load()
	if start == 0 {
		return 0
	}
	end := es.endTime.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}
