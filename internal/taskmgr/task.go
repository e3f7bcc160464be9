package taskmgr

import (
	"sync/atomic"
	"time"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// State is a task's lifecycle state. Terminal states are final; there are no
// transitions out of them.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether a state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Step is a named stage of the execution pipeline, recorded in order.
type Step string

const (
	StepParsing    Step = "parsing"
	StepSearching  Step = "searching"
	StepRetrieving Step = "retrieving"
	StepGenerating Step = "generating"
)

// StepLogEntry is one recorded step transition.
type StepLogEntry struct {
	Step    Step
	Message string
	At      time.Time
}

// Progress is the externally visible execution status of a task.
type Progress struct {
	State   State
	Step    Step
	Message string
	Percent int
}

// Result is a completed task's payload.
type Result struct {
	Answer  string
	Sources []types.RetrievalResult
}

// Task is one submitted search. All mutable fields are guarded by the
// manager's mutex; the cancellation flag is atomic so the pipeline can check
// it without locking.
type Task struct {
	ID         string
	Query      string
	Mode       string // raw mode string, parsed during the parsing step
	MaxResults int

	state   State
	step    Step
	message string
	percent int
	stepLog []StepLogEntry
	result  *Result
	err     error

	cancelRequested atomic.Bool

	createdAt   time.Time
	completedAt time.Time
}
