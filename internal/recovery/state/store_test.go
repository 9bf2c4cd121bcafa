package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)
	return store, base
}

func TestStore_SaveAndLoadRun_IncludesNullablePreviousRunID(t *testing.T) {
	store, base := newTestStore(t)

	run := Run{
		RunID:         "run-123",
		SweepHash:     "sh-abc",
		StartTime:     time.Unix(1, 2).UTC(),
		Mode:          "supervised",
		FailurePolicy: "continue",
		Jobs:          6,
		Status:        RunStatusRunning,
	}
	require.NoError(t, store.SaveRun(run))

	data, err := os.ReadFile(filepath.Join(base, ".awacsweep", "runs", "run-123", "run.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "\"previous_run_id\": null")
	require.NotContains(t, string(data), "end_time")

	loaded, err := store.LoadRun("run-123")
	require.NoError(t, err)
	require.Equal(t, run.SweepHash, loaded.SweepHash)
	require.Equal(t, 6, loaded.Jobs)
	require.Nil(t, loaded.PreviousRunID)
}

func TestStore_SaveRun_RejectsInvalid(t *testing.T) {
	store, _ := newTestStore(t)

	require.ErrorContains(t, store.SaveRun(Run{RunID: "../x", StartTime: time.Unix(1, 0), Status: RunStatusRunning}), "invalid runID")

	err := store.SaveRun(Run{RunID: "r", Status: "bogus"})
	require.Error(t, err)
	for _, want := range []string{"start_time", "invalid status"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestStore_SaveAndLoadCheckpoint(t *testing.T) {
	store, _ := newTestStore(t)

	cp := Checkpoint{
		ExpName:    "q4_awac_easy_lam0.1",
		Index:      0,
		Lambda:     "0.1",
		State:      "SUCCEEDED",
		ExitCode:   intPtr(0),
		DurationMS: 1500,
		Timestamp:  time.Unix(10, 0).UTC(),
	}
	require.NoError(t, store.SaveCheckpoint("run-1", cp))

	loaded, err := store.LoadCheckpoint("run-1", "q4_awac_easy_lam0.1")
	require.NoError(t, err)
	require.Equal(t, cp.Lambda, loaded.Lambda)
	require.True(t, loaded.Succeeded())
}

func TestStore_SaveCheckpoint_SucceededRequiresZeroExit(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.SaveCheckpoint("run-1", Checkpoint{
		ExpName:   "x_lam1",
		Lambda:    "1",
		State:     "SUCCEEDED",
		ExitCode:  intPtr(3),
		Timestamp: time.Unix(10, 0).UTC(),
	})
	require.ErrorContains(t, err, "exit_code 0")
}

func TestStore_LoadCheckpoint_RejectsMismatchedName(t *testing.T) {
	store, base := newTestStore(t)

	cp := Checkpoint{ExpName: "x_lam1", Lambda: "1", State: "FAILED", ExitCode: intPtr(1), Timestamp: time.Unix(1, 0).UTC()}
	require.NoError(t, store.SaveCheckpoint("run-1", cp))

	dir := filepath.Join(base, ".awacsweep", "runs", "run-1", "checkpoints")
	require.NoError(t, os.Rename(filepath.Join(dir, "x_lam1.json"), filepath.Join(dir, "x_lam2.json")))

	_, err := store.LoadCheckpoint("run-1", "x_lam2")
	require.ErrorContains(t, err, "holds exp_name")
}

func TestStore_LoadAllCheckpoints_OrderedByIndex(t *testing.T) {
	store, _ := newTestStore(t)

	jobs := []struct {
		lambda string
		index  int
	}{{"20", 4}, {"0.1", 0}, {"2", 2}}
	for i, j := range jobs {
		cp := Checkpoint{
			ExpName:   "p_lam" + j.lambda,
			Index:     j.index,
			Lambda:    j.lambda,
			State:     "FAILED",
			ExitCode:  intPtr(i + 1),
			Timestamp: time.Unix(int64(i+1), 0).UTC(),
		}
		require.NoError(t, store.SaveCheckpoint("run-1", cp))
	}

	all, err := store.LoadAllCheckpoints("run-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"0.1", "2", "20"}, []string{all[0].Lambda, all[1].Lambda, all[2].Lambda})
}

func TestStore_LoadAllCheckpoints_MissingDirIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	all, err := store.LoadAllCheckpoints("nope")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStore_ReadJSONStrict_RejectsUnknownFields(t *testing.T) {
	store, base := newTestStore(t)

	dir := filepath.Join(base, ".awacsweep", "runs", "run-x")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := `{"run_id":"run-x","sweep_hash":"h","start_time":"2024-01-01T00:00:00Z","mode":"supervised","failure_policy":"continue","jobs":1,"retry_count":0,"status":"running","previous_run_id":null,"surprise":1}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json"), []byte(body), 0o644))

	_, err := store.LoadRun("run-x")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unknown field"), err.Error())
}

func TestStore_ListRunIDs(t *testing.T) {
	store, _ := newTestStore(t)

	ids, err := store.ListRunIDs()
	require.NoError(t, err)
	require.Empty(t, ids)

	for _, id := range []string{"b", "a"} {
		require.NoError(t, store.SaveRun(Run{RunID: id, SweepHash: "h", StartTime: time.Unix(1, 0).UTC(), Status: RunStatusRunning}))
	}
	ids, err = store.ListRunIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestFailureRecorder_Lifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &FailureRecorder{Store: store, Now: func() time.Time { return fixed }}

	id := rec.NewRunID()
	require.NotEmpty(t, id)
	require.NotEqual(t, id, rec.NewRunID())

	require.NoError(t, rec.StartRun(Run{RunID: id, SweepHash: "h", Jobs: 6}))
	run, err := store.LoadRun(id)
	require.NoError(t, err)
	require.Equal(t, RunStatusRunning, run.Status)
	require.True(t, run.StartTime.Equal(fixed))
	require.Nil(t, run.EndTime)

	require.NoError(t, rec.RecordFailure(id, &JobsFailedError{Jobs: []FailedJob{{ExpName: "p_lam2", Lambda: "2", ExitCode: 1, Reason: "NonZeroExit"}}, Total: 6}))
	require.NoError(t, rec.FinishRun(id, RunStatusFailed))

	run, err = store.LoadRun(id)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, run.Status)
	require.NotNil(t, run.EndTime)

	f, err := store.LoadFailure(id)
	require.NoError(t, err)
	require.Equal(t, FailureClassExecution, f.FailureClass)
	require.True(t, f.Resumable)
	require.Equal(t, "p_lam2", f.FailedJobs[0].ExpName)
}
