package state

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ResumePlan describes which jobs of a previous run need not be executed
// again.
type ResumePlan struct {
	Previous Run

	// Completed holds the experiment names whose training run finished.
	Completed map[string]bool
}

// ErrNoResumableRun is returned when no previous run of the same sweep can
// be resumed.
var ErrNoResumableRun = errors.New("no resumable previous run")

// ResumePlanner finds and validates the run a new sweep resumes from.
type ResumePlanner struct {
	Store *Store
}

// Plan selects the run to resume and loads its completed jobs.
//
// With an explicit runID that run is used; otherwise the most recently
// started run with the same sweep hash is chosen. known maps
// each experiment name of the current sweep to its lambda text; checkpoints
// that disagree with it make the plan fail, since they belong to a
// different sweep.
func (p *ResumePlanner) Plan(sweepHash, runID string, known map[string]string) (*ResumePlan, error) {
	if p == nil || p.Store == nil {
		return nil, errors.New("Store is required")
	}
	var prev Run
	var err error
	if strings.TrimSpace(runID) != "" {
		prev, err = p.Store.LoadRun(strings.TrimSpace(runID))
		if err != nil {
			return nil, fmt.Errorf("loading run %s: %w", runID, err)
		}
	} else {
		prev, err = p.latestRun(sweepHash)
		if err != nil {
			return nil, err
		}
	}

	if err := p.checkEligible(prev, sweepHash); err != nil {
		return nil, err
	}

	checkpoints, err := p.Store.LoadAllCheckpoints(prev.RunID)
	if err != nil {
		return nil, &SetupError{Class: FailureClassWorkspace, Code: "CheckpointUnreadable", Err: err}
	}
	if err := ValidateCheckpoints(checkpoints, known); err != nil {
		return nil, &SetupError{Class: FailureClassWorkspace, Code: "CheckpointMismatch", Err: err}
	}

	completed := make(map[string]bool, len(checkpoints))
	for _, cp := range checkpoints {
		if cp.Succeeded() {
			completed[cp.ExpName] = true
		}
	}
	return &ResumePlan{Previous: prev, Completed: completed}, nil
}

// latestRun returns the most recently started run of the sweep that got
// as far as executing jobs. Runs rejected during setup (bad config, failed
// resume attempt) are passed over: they carry no checkpoints and would
// otherwise hide the run before them. A sweep whose latest run succeeded
// has nothing to resume.
func (p *ResumePlanner) latestRun(sweepHash string) (Run, error) {
	ids, err := p.Store.ListRunIDs()
	if err != nil {
		return Run{}, err
	}
	var best *Run
	for _, id := range ids {
		run, err := p.Store.LoadRun(id)
		if err != nil || run.SweepHash != sweepHash {
			// Half-written or foreign directories are not candidates.
			continue
		}
		if f, err := p.Store.LoadFailure(id); err == nil && !f.Resumable {
			continue
		}
		if best == nil || run.StartTime.After(best.StartTime) {
			r := run
			best = &r
		}
	}
	if best == nil || best.Status == RunStatusSucceeded {
		return Run{}, ErrNoResumableRun
	}
	return *best, nil
}

func (p *ResumePlanner) checkEligible(prev Run, sweepHash string) error {
	if prev.SweepHash != sweepHash {
		return fmt.Errorf("sweep hash mismatch (prev=%s new=%s)", prev.SweepHash, sweepHash)
	}
	if prev.Status == RunStatusSucceeded {
		return fmt.Errorf("run %s already succeeded; nothing to resume", prev.RunID)
	}
	// A run killed hard (SIGKILL, power loss) never wrote failure.json and
	// stays "running"; it is still resumable from its checkpoints.
	failure, err := p.Store.LoadFailure(prev.RunID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading previous run failure: %w", err)
	}
	if !failure.Resumable {
		return fmt.Errorf("previous run failure is not resumable (class=%s code=%s)", failure.FailureClass, failure.ErrorCode)
	}
	return nil
}

// ValidateCheckpoints checks that every checkpoint belongs to the sweep
// described by known (exp name -> lambda text).
func ValidateCheckpoints(checkpoints []Checkpoint, known map[string]string) error {
	var errs []error
	for _, cp := range checkpoints {
		lambda, ok := known[cp.ExpName]
		if !ok {
			errs = append(errs, fmt.Errorf("checkpoint %q is not part of this sweep", cp.ExpName))
			continue
		}
		if lambda != cp.Lambda {
			errs = append(errs, fmt.Errorf("checkpoint %q has lambda %s, sweep has %s", cp.ExpName, cp.Lambda, lambda))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NextRun links a new run to the one it resumes.
func (p *ResumePlan) NextRun(run Run) Run {
	if p == nil {
		return run
	}
	prevID := p.Previous.RunID
	run.PreviousRunID = &prevID
	run.RetryCount = p.Previous.RetryCount + 1
	return run
}
