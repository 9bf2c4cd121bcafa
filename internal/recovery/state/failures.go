package state

import (
	"errors"
	"fmt"
	"strings"
)

// Recordable is implemented by errors that know how they are persisted as
// failure.json.
type Recordable interface {
	error
	Failure() Failure
}

// SetupError is a failure before any job was started: a bad configuration
// or an unusable log or state directory. Rerunning the same sweep would
// fail the same way, so it is never resumable.
type SetupError struct {
	Class FailureClass // FailureClassConfig or FailureClassWorkspace
	Code  string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s failure (%s): %v", e.Class, e.Code, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Failure() Failure {
	class := e.Class
	if class != FailureClassWorkspace {
		class = FailureClassConfig
	}
	return Failure{FailureClass: class, ErrorCode: e.Code, ErrorMessage: e.Err.Error()}
}

// JobsFailedError reports the jobs of a completed sweep that did not
// succeed. A later run resumes by re-running exactly these.
type JobsFailedError struct {
	Jobs  []FailedJob
	Total int
}

func (e *JobsFailedError) Error() string {
	names := make([]string, len(e.Jobs))
	for i, j := range e.Jobs {
		names[i] = fmt.Sprintf("%s (lambda=%s exit=%d)", j.ExpName, j.Lambda, j.ExitCode)
	}
	return fmt.Sprintf("%d of %d jobs failed: %s", len(e.Jobs), e.Total, strings.Join(names, ", "))
}

// Code is the common reason of all failed jobs, or "MixedFailures".
func (e *JobsFailedError) Code() string {
	code := ""
	for _, j := range e.Jobs {
		switch {
		case code == "":
			code = j.Reason
		case code != j.Reason:
			return "MixedFailures"
		}
	}
	if code == "" {
		return "JobFailed"
	}
	return code
}

func (e *JobsFailedError) Failure() Failure {
	return Failure{
		FailureClass: FailureClassExecution,
		ErrorCode:    e.Code(),
		ErrorMessage: e.Error(),
		Resumable:    true,
		FailedJobs:   append([]FailedJob(nil), e.Jobs...),
	}
}

// SystemError is an interruption or an internal fault while jobs were
// running. Checkpoints written so far stay valid, so it is resumable.
type SystemError struct {
	Code string
	Err  error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system failure (%s): %v", e.Code, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

func (e *SystemError) Failure() Failure {
	return Failure{FailureClass: FailureClassSystem, ErrorCode: e.Code, ErrorMessage: e.Err.Error(), Resumable: true}
}

// FailureOf converts err to its persisted form. Errors that do not
// implement Recordable are recorded as resumable system failures.
func FailureOf(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}
	var r Recordable
	if errors.As(err, &r) {
		return r.Failure(), nil
	}
	return Failure{FailureClass: FailureClassSystem, ErrorCode: "UnknownError", ErrorMessage: err.Error(), Resumable: true}, nil
}
