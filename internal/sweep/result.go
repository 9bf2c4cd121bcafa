package sweep

import (
	"time"

	"awacsweep/internal/core"
)

// JobResult is the outcome of one child process as seen by the runner.
type JobResult struct {
	ExitCode int
	Duration time.Duration
	LogPath  string

	// SpawnErr is set when the child could not be started. ExitCode is -1
	// in that case.
	SpawnErr error
}

// Failed reports whether the job counts as a failure.
func (r *JobResult) Failed() bool {
	return r == nil || r.SpawnErr != nil || r.ExitCode != 0
}

// FailureReason returns the reason code of a failed job, or "" when the job
// succeeded.
func (r *JobResult) FailureReason() string {
	switch {
	case r == nil || r.SpawnErr != nil:
		return ReasonSpawnFailed
	case r.ExitCode != 0:
		return ReasonNonZeroExit
	default:
		return ""
	}
}

// Outcome is what an Observer sees when a job reaches a terminal state.
type Outcome struct {
	State  JobState
	Result *JobResult
	Reason string
}

// Result summarizes one sweep execution.
type Result struct {
	SweepHash core.SweepHash
	Policy    FailurePolicy

	// FinalState is the terminal state of each job by experiment name.
	FinalState ExecutionState

	// StartOrder lists the jobs in the order they were started.
	StartOrder []string

	// Jobs holds results for executed jobs, by experiment name.
	Jobs map[string]*JobResult

	// Order is the experiment names in coefficient list order.
	Order []string
}

// Count returns how many jobs ended in state s.
func (r *Result) Count(s JobState) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, st := range r.FinalState {
		if st == s {
			n++
		}
	}
	return n
}

// Failed returns the failed jobs in coefficient order.
func (r *Result) Failed() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, name := range r.Order {
		if r.FinalState[name] == JobFailed {
			out = append(out, name)
		}
	}
	return out
}

// OK reports whether the sweep counts as successful under its policy.
func (r *Result) OK() bool {
	if r == nil {
		return false
	}
	if r.Policy == PolicyIgnore {
		return true
	}
	for _, st := range r.FinalState {
		if !IsSuccessful(st) {
			return false
		}
	}
	return true
}
