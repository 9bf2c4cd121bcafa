package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var sweepKnown = map[string]string{
	"p_lam0.1": "0.1",
	"p_lam1":   "1",
	"p_lam2":   "2",
}

func seedRun(t *testing.T, store *Store, id, hash string, start int64, status RunStatus) {
	t.Helper()
	require.NoError(t, store.SaveRun(Run{
		RunID:     id,
		SweepHash: hash,
		StartTime: time.Unix(start, 0).UTC(),
		Jobs:      3,
		Status:    status,
	}))
}

func seedCheckpoint(t *testing.T, store *Store, runID, name, lambda string, index int, state string, exit int) {
	t.Helper()
	require.NoError(t, store.SaveCheckpoint(runID, Checkpoint{
		ExpName:   name,
		Index:     index,
		Lambda:    lambda,
		State:     state,
		ExitCode:  intPtr(exit),
		Timestamp: time.Unix(100, 0).UTC(),
	}))
}

func TestResumePlanner_PicksLatestRunWithSameHash(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "old", "h1", 10, RunStatusFailed)
	seedRun(t, store, "new", "h1", 20, RunStatusFailed)
	seedRun(t, store, "other", "h2", 30, RunStatusFailed)
	seedRun(t, store, "done", "h1", 5, RunStatusSucceeded)

	seedCheckpoint(t, store, "new", "p_lam0.1", "0.1", 0, "SUCCEEDED", 0)
	seedCheckpoint(t, store, "new", "p_lam1", "1", 1, "FAILED", 1)

	planner := &ResumePlanner{Store: store}
	plan, err := planner.Plan("h1", "", sweepKnown)
	require.NoError(t, err)
	require.Equal(t, "new", plan.Previous.RunID)
	require.Equal(t, map[string]bool{"p_lam0.1": true}, plan.Completed)
}

func TestResumePlanner_LatestRunSucceeded(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "failed", "h1", 10, RunStatusFailed)
	seedRun(t, store, "done", "h1", 20, RunStatusSucceeded)

	_, err := (&ResumePlanner{Store: store}).Plan("h1", "", sweepKnown)
	require.ErrorIs(t, err, ErrNoResumableRun)
}

func TestResumePlanner_SkipsRunsRejectedDuringSetup(t *testing.T) {
	store, _ := newTestStore(t)
	rec := &FailureRecorder{Store: store}
	seedRun(t, store, "executed", "h1", 10, RunStatusFailed)
	require.NoError(t, rec.RecordFailure("executed", &JobsFailedError{Jobs: []FailedJob{{ExpName: "p_lam1", Lambda: "1", ExitCode: 1}}, Total: 3}))
	seedCheckpoint(t, store, "executed", "p_lam0.1", "0.1", 0, "SUCCEEDED", 0)
	seedRun(t, store, "rejected", "h1", 20, RunStatusFailed)
	require.NoError(t, rec.RecordFailure("rejected", &SetupError{Class: FailureClassConfig, Code: "ResumeIneligible", Err: errors.New("no run nope")}))

	plan, err := (&ResumePlanner{Store: store}).Plan("h1", "", sweepKnown)
	require.NoError(t, err)
	require.Equal(t, "executed", plan.Previous.RunID)
	require.True(t, plan.Completed["p_lam0.1"])

	// Only setup failures left: nothing to resume.
	store2, _ := newTestStore(t)
	seedRun(t, store2, "rejected", "h1", 20, RunStatusFailed)
	require.NoError(t, (&FailureRecorder{Store: store2}).RecordFailure("rejected", &SetupError{Class: FailureClassConfig, Code: "InvalidConfig", Err: errors.New("bad")}))
	_, err = (&ResumePlanner{Store: store2}).Plan("h1", "", sweepKnown)
	require.ErrorIs(t, err, ErrNoResumableRun)
}

func TestResumePlanner_NoRuns(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := (&ResumePlanner{Store: store}).Plan("h1", "", sweepKnown)
	require.ErrorIs(t, err, ErrNoResumableRun)
}

func TestResumePlanner_ExplicitRunMustMatchHash(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "r1", "h1", 10, RunStatusFailed)

	_, err := (&ResumePlanner{Store: store}).Plan("h2", "r1", sweepKnown)
	require.ErrorContains(t, err, "sweep hash mismatch")
}

func TestResumePlanner_RejectsNonResumableFailure(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "r1", "h1", 10, RunStatusFailed)
	rec := &FailureRecorder{Store: store}
	require.NoError(t, rec.RecordFailure("r1", &SetupError{Class: FailureClassWorkspace, Code: "LogDir", Err: errors.New("denied")}))

	_, err := (&ResumePlanner{Store: store}).Plan("h1", "r1", sweepKnown)
	require.ErrorContains(t, err, "not resumable")
}

func TestResumePlanner_CrashedRunWithoutFailureRecordIsResumable(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "r1", "h1", 10, RunStatusRunning)
	seedCheckpoint(t, store, "r1", "p_lam2", "2", 2, "SUCCEEDED", 0)

	plan, err := (&ResumePlanner{Store: store}).Plan("h1", "", sweepKnown)
	require.NoError(t, err)
	require.True(t, plan.Completed["p_lam2"])
}

func TestResumePlanner_RejectsForeignCheckpoint(t *testing.T) {
	store, _ := newTestStore(t)
	seedRun(t, store, "r1", "h1", 10, RunStatusFailed)
	seedCheckpoint(t, store, "r1", "p_lam2", "3", 2, "SUCCEEDED", 0)

	_, err := (&ResumePlanner{Store: store}).Plan("h1", "r1", sweepKnown)
	require.Error(t, err)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "CheckpointMismatch", se.Code)
}

func TestResumePlan_NextRunLinksPrevious(t *testing.T) {
	plan := &ResumePlan{Previous: Run{RunID: "r1", RetryCount: 2}}
	next := plan.NextRun(Run{RunID: "r2"})
	require.NotNil(t, next.PreviousRunID)
	require.Equal(t, "r1", *next.PreviousRunID)
	require.Equal(t, 3, next.RetryCount)

	var none *ResumePlan
	require.Equal(t, Run{RunID: "r3"}, none.NextRun(Run{RunID: "r3"}))
}

func TestValidateCheckpoints_ReportsAllMismatches(t *testing.T) {
	err := ValidateCheckpoints([]Checkpoint{
		{ExpName: "x", Lambda: "1"},
		{ExpName: "p_lam1", Lambda: "10"},
		{ExpName: "p_lam2", Lambda: "2"},
	}, sweepKnown)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"x" is not part of this sweep`)
	require.Contains(t, err.Error(), "has lambda 10")
}
