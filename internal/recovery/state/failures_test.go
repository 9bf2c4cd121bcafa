package state

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailureOf_SetupErrorsAreNotResumable(t *testing.T) {
	f, err := FailureOf(&SetupError{Class: FailureClassConfig, Code: "UnknownKey", Err: errors.New("lamdbas")})
	require.NoError(t, err)
	require.Equal(t, FailureClassConfig, f.FailureClass)
	require.False(t, f.Resumable)
	require.NoError(t, f.Validate())

	f, err = FailureOf(fmt.Errorf("sweep: %w", &SetupError{Class: FailureClassWorkspace, Code: "LogDir", Err: errors.New("denied")}))
	require.NoError(t, err)
	require.Equal(t, FailureClassWorkspace, f.FailureClass)
	require.Equal(t, "LogDir", f.ErrorCode)
	require.False(t, f.Resumable)
}

func TestFailureOf_JobsFailedCarriesJobs(t *testing.T) {
	jobs := []FailedJob{
		{ExpName: "p_lam2", Lambda: "2", ExitCode: 1, Reason: "NonZeroExit"},
		{ExpName: "p_lam50", Lambda: "50", ExitCode: 137, Reason: "NonZeroExit"},
	}
	f, err := FailureOf(&JobsFailedError{Jobs: jobs, Total: 6})
	require.NoError(t, err)
	require.Equal(t, FailureClassExecution, f.FailureClass)
	require.True(t, f.Resumable)
	require.Equal(t, "NonZeroExit", f.ErrorCode)
	require.Equal(t, jobs, f.FailedJobs)
	require.Contains(t, f.ErrorMessage, "2 of 6 jobs failed")
	require.Contains(t, f.ErrorMessage, "p_lam50 (lambda=50 exit=137)")
	require.NoError(t, f.Validate())
}

func TestJobsFailedError_Code(t *testing.T) {
	spawn := FailedJob{ExpName: "a", Reason: "SpawnFailed"}
	exit := FailedJob{ExpName: "b", Reason: "NonZeroExit"}

	require.Equal(t, "SpawnFailed", (&JobsFailedError{Jobs: []FailedJob{spawn, spawn}}).Code())
	require.Equal(t, "MixedFailures", (&JobsFailedError{Jobs: []FailedJob{spawn, exit}}).Code())
	require.Equal(t, "JobFailed", (&JobsFailedError{Jobs: []FailedJob{{ExpName: "c"}}}).Code())
}

func TestFailureOf_SystemAndUnknown(t *testing.T) {
	f, err := FailureOf(&SystemError{Code: "Interrupted", Err: errors.New("signal")})
	require.NoError(t, err)
	require.Equal(t, FailureClassSystem, f.FailureClass)
	require.True(t, f.Resumable)

	f, err = FailureOf(errors.New("mystery"))
	require.NoError(t, err)
	require.Equal(t, FailureClassSystem, f.FailureClass)
	require.Equal(t, "UnknownError", f.ErrorCode)

	_, err = FailureOf(nil)
	require.Error(t, err)
}

func TestFailure_Validate(t *testing.T) {
	err := Failure{FailureClass: FailureClassConfig, ErrorCode: "x", ErrorMessage: "y", Resumable: true}.Validate()
	require.ErrorContains(t, err, "never resumable")

	err = Failure{FailureClass: FailureClassExecution, ErrorCode: "x", ErrorMessage: "y"}.Validate()
	require.ErrorContains(t, err, "failed_jobs")

	err = Failure{FailureClass: "graph"}.Validate()
	require.ErrorContains(t, err, "invalid failure_class")
	require.ErrorContains(t, err, "error_code")
}
