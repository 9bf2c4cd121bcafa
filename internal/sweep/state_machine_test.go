package sweep

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransition_ValidAndInvalid(t *testing.T) {
	state := ExecutionState{"a": JobPending}

	require.NoError(t, Transition(state, "a", JobPending, JobRunning))
	require.NoError(t, Transition(state, "a", JobRunning, JobSucceeded))

	// Terminal -> RUNNING is forbidden.
	require.Error(t, Transition(state, "a", JobSucceeded, JobRunning))

	// Stale expected state.
	state["b"] = JobPending
	require.Error(t, Transition(state, "b", JobRunning, JobFailed))
	require.Equal(t, JobPending, state["b"])

	// PENDING cannot jump straight to SUCCEEDED.
	require.Error(t, Transition(state, "b", JobPending, JobSucceeded))

	require.Error(t, Transition(state, "missing", JobPending, JobRunning))
}

func TestTerminalAndSuccessful(t *testing.T) {
	for s, terminal := range map[JobState]bool{
		JobPending: false, JobRunning: false,
		JobSucceeded: true, JobFailed: true, JobSkipped: true, JobResumed: true,
	} {
		require.Equal(t, terminal, IsTerminal(s), s)
	}
	require.True(t, IsSuccessful(JobSucceeded))
	require.True(t, IsSuccessful(JobResumed))
	require.False(t, IsSuccessful(JobFailed))
	require.False(t, IsSuccessful(JobSkipped))
}

func TestSkipPending(t *testing.T) {
	state := ExecutionState{"a": JobSucceeded, "b": JobPending, "c": JobRunning, "d": JobPending}
	skipped := SkipPending(state, []string{"a", "b", "c", "d"})
	require.Equal(t, []string{"b", "d"}, skipped)
	require.Equal(t, JobSkipped, state["b"])
	require.Equal(t, JobRunning, state["c"])
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyContinue, p)

	p, err = ParseFailurePolicy(" STOP ")
	require.NoError(t, err)
	require.Equal(t, PolicyStop, p)

	_, err = ParseFailurePolicy("retry")
	require.Error(t, err)
}
