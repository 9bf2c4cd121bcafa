package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureRecorder writes run lifecycle records: run.json at start and end,
// failure.json when the run does not fully succeed.
type FailureRecorder struct {
	Store *Store

	// Now is overridable for tests.
	Now func() time.Time
}

func (r *FailureRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// NewRunID returns a fresh random run identifier.
func (r *FailureRecorder) NewRunID() string {
	return uuid.NewString()
}

func (r *FailureRecorder) StartRun(run Run) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = r.now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	return r.Store.SaveRun(run)
}

// FinishRun stamps the end time and final status onto an existing run.
func (r *FailureRecorder) FinishRun(runID string, status RunStatus) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	end := r.now()
	run.EndTime = &end
	run.Status = status
	return r.Store.SaveRun(run)
}

func (r *FailureRecorder) RecordFailure(runID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, ferr := FailureOf(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailure(runID, f)
}
