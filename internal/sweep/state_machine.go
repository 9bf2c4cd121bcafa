package sweep

import "fmt"

// IsTerminal reports whether the state is final.
func IsTerminal(s JobState) bool {
	switch s {
	case JobSucceeded, JobFailed, JobSkipped, JobResumed:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the job's training run exists on disk.
func IsSuccessful(s JobState) bool {
	return s == JobSucceeded || s == JobResumed
}

// Transition performs a validated transition for a single job.
//
// The caller supplies the expected prior state so that races are observable.
// The map is mutated if and only if the transition is valid.
func Transition(state ExecutionState, expName string, from, to JobState) error {
	cur, ok := state[expName]
	if !ok {
		return fmt.Errorf("unknown job in state: %q", expName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", expName, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", expName, from, to)
	}
	state[expName] = to
	return nil
}

func isAllowedTransition(from, to JobState) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobSkipped || to == JobResumed
	case JobRunning:
		return to == JobSucceeded || to == JobFailed
	default:
		return false
	}
}

// SkipPending marks every still pending job in names as SKIPPED and returns
// the names it changed, in the order given.
func SkipPending(state ExecutionState, names []string) []string {
	var skipped []string
	for _, n := range names {
		if state[n] == JobPending {
			state[n] = JobSkipped
			skipped = append(skipped, n)
		}
	}
	return skipped
}
