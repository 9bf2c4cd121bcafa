package sweep

// JobState is the runtime state of one job.
//
//	PENDING -> RUNNING -> SUCCEEDED | FAILED
//	PENDING -> SKIPPED
//	PENDING -> RESUMED
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobSkipped   JobState = "SKIPPED"

	// JobResumed marks a job that succeeded in a previous run of the same
	// sweep and is not executed again.
	JobResumed JobState = "RESUMED"
)

// ExecutionState holds per-job state keyed by experiment name.
type ExecutionState map[string]JobState
