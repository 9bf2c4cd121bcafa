package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) valid() bool {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run is the persistent metadata of one sweep execution.
type Run struct {
	RunID         string     `json:"run_id"`
	SweepHash     string     `json:"sweep_hash"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Mode          string     `json:"mode"`
	FailurePolicy string     `json:"failure_policy"`
	Jobs          int        `json:"jobs"`
	RetryCount    int        `json:"retry_count"`
	Status        RunStatus  `json:"status"`
	PreviousRunID *string    `json:"previous_run_id"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.ContainsAny(r.RunID, `/\`) {
		errs = append(errs, fmt.Errorf("run_id %q must not contain path separators", r.RunID))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if r.Jobs < 0 {
		errs = append(errs, errors.New("jobs must be >= 0"))
	}
	if r.RetryCount < 0 {
		errs = append(errs, errors.New("retry_count must be >= 0"))
	}
	if !r.Status.valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.PreviousRunID != nil && strings.TrimSpace(*r.PreviousRunID) == "" {
		errs = append(errs, errors.New("previous_run_id must not be empty when provided"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Checkpoint records the terminal state of one job of a run.
type Checkpoint struct {
	ExpName    string    `json:"exp_name"`
	Index      int       `json:"index"`
	Lambda     string    `json:"lambda"`
	State      string    `json:"state"`
	ExitCode   *int      `json:"exit_code"`
	DurationMS int64     `json:"duration_ms"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Succeeded reports whether the checkpoint proves the job's training run
// completed.
func (c Checkpoint) Succeeded() bool {
	return c.State == "SUCCEEDED" || c.State == "RESUMED"
}

func (c Checkpoint) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ExpName) == "" {
		errs = append(errs, errors.New("exp_name is required"))
	}
	if strings.ContainsAny(c.ExpName, `/\`) {
		errs = append(errs, fmt.Errorf("exp_name %q must not contain path separators", c.ExpName))
	}
	if c.Index < 0 {
		errs = append(errs, errors.New("index must be >= 0"))
	}
	if strings.TrimSpace(c.Lambda) == "" {
		errs = append(errs, errors.New("lambda is required"))
	}
	if strings.TrimSpace(c.State) == "" {
		errs = append(errs, errors.New("state is required"))
	}
	if c.State == "SUCCEEDED" && (c.ExitCode == nil || *c.ExitCode != 0) {
		errs = append(errs, errors.New("succeeded checkpoint must carry exit_code 0"))
	}
	if c.DurationMS < 0 {
		errs = append(errs, errors.New("duration_ms must be >= 0"))
	}
	if c.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	FailureClassConfig    FailureClass = "config"
	FailureClassWorkspace FailureClass = "workspace"
	FailureClassExecution FailureClass = "execution"
	FailureClassSystem    FailureClass = "system"
)

// FailedJob identifies one job that did not succeed.
type FailedJob struct {
	ExpName  string `json:"exp_name"`
	Lambda   string `json:"lambda"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason"`
}

// Failure is the recorded reason a run did not fully succeed.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	Resumable    bool         `json:"resumable"`

	// FailedJobs is set for execution failures, in coefficient order.
	FailedJobs []FailedJob `json:"failed_jobs,omitempty"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassConfig, FailureClassWorkspace:
		if f.Resumable {
			errs = append(errs, fmt.Errorf("%s failures are never resumable", f.FailureClass))
		}
	case FailureClassExecution:
		if len(f.FailedJobs) == 0 {
			errs = append(errs, errors.New("execution failure must list failed_jobs"))
		}
	case FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	for i, j := range f.FailedJobs {
		if strings.TrimSpace(j.ExpName) == "" {
			errs = append(errs, fmt.Errorf("failed_jobs[%d].exp_name is required", i))
		}
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	return errors.Join(errs...)
}
