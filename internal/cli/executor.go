package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"awacsweep/internal/config"
	"awacsweep/internal/core"
	"awacsweep/internal/metrics"
	"awacsweep/internal/recovery/state"
	"awacsweep/internal/sweep"
	"awacsweep/internal/trace"
)

// CLIResult is the outcome of Execute.
type CLIResult struct {
	ExitCode  int
	RunID     string
	Result    *sweep.Result
	TraceHash string
}

// Output is where children's output goes. Nil writers mean the runner's
// own stdout and stderr.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Execute runs the sweep described by inv with real child processes.
func Execute(ctx context.Context, inv CLIInvocation, out Output) (CLIResult, error) {
	return ExecuteWithRunner(ctx, inv, out, nil)
}

// ExecuteWithRunner is Execute with a replaceable job runner; nil selects
// the process executor.
//
// Responsibilities:
//   - Resolve the sweep and record configuration failures.
//   - Plan a resume when requested.
//   - Persist run, checkpoint and failure records (best effort).
//   - Write trace and metrics files even when the sweep fails.
//   - Translate the sweep outcome to a semantic exit code.
func ExecuteWithRunner(ctx context.Context, inv CLIInvocation, out Output, jobs sweep.JobRunner) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError

	st, err := state.NewStore(inv.WorkDir)
	if err != nil {
		return res, err
	}
	rec := &state.FailureRecorder{Store: st}
	runID := rec.NewRunID()
	res.RunID = runID

	resolved, err := inv.Resolve()
	if err != nil {
		recordEarlyFailure(rec, state.Run{RunID: runID}, &state.SetupError{Class: state.FailureClassConfig, Code: "InvalidConfig", Err: err})
		res.ExitCode = ExitConfigError
		return res, err
	}
	invocations, err := core.BuildInvocations(resolved.Spec)
	if err != nil {
		err = &config.ConfigError{Err: err}
		recordEarlyFailure(rec, state.Run{RunID: runID}, &state.SetupError{Class: state.FailureClassConfig, Code: "InvalidSweep", Err: err})
		res.ExitCode = ExitConfigError
		return res, err
	}
	sweepHash := core.ComputeSweepHash(inv.WorkDir, invocations)
	run := state.Run{
		RunID:         runID,
		SweepHash:     sweepHash.String(),
		Mode:          string(resolved.Spec.Mode),
		FailurePolicy: string(resolved.Policy),
		Jobs:          len(invocations),
	}

	if inv.LogDir != "" {
		if err := os.MkdirAll(inv.LogDir, 0o755); err != nil {
			recordEarlyFailure(rec, run, &state.SetupError{Class: state.FailureClassWorkspace, Code: "LogDir", Err: err})
			res.ExitCode = ExitConfigError
			return res, &config.ConfigError{Source: inv.LogDir, Err: err}
		}
	}

	var plan *state.ResumePlan
	if inv.resumeRequested() {
		plan, err = planResume(st, inv, sweepHash, invocations)
		if err != nil {
			recordEarlyFailure(rec, run, &state.SetupError{Class: state.FailureClassConfig, Code: "ResumeIneligible", Err: err})
			res.ExitCode = ExitConfigError
			return res, &config.ConfigError{Err: err}
		}
	}
	run = plan.NextRun(run)
	if err := rec.StartRun(run); err != nil {
		log.Warn("record run start failed", zap.String("runID", runID), zap.Error(err))
	}

	recorder := trace.NewRecorder()
	collector := metrics.NewCollector()
	defer func() {
		res.TraceHash = writeArtifacts(inv, recorder, collector, sweepHash)
	}()

	if jobs == nil {
		ex := core.NewExecutor(inv.WorkDir)
		ex.Stdout, ex.Stderr, ex.LogDir = out.Stdout, out.Stderr, inv.LogDir
		jobs = sweep.ExecutorJobRunner{Executor: ex}
	}
	runner, err := sweep.NewRunner(invocations, jobs)
	if err != nil {
		finishRun(rec, runID, state.RunStatusFailed, &state.SystemError{Code: "RunnerInit", Err: err})
		return res, err
	}
	runner.Policy = resolved.Policy
	runner.Parallel = resolved.Parallel
	runner.SweepHash = sweepHash
	runner.Sink = recorder
	runner.Observer = sweep.Observers{checkpointObserver{Store: st, RunID: runID}, collector}
	if plan != nil {
		runner.Completed = plan.Completed
	}

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			res.Result = nil
			execErr = fmt.Errorf("panic: %v", r)
			finishRun(rec, runID, state.RunStatusFailed, &state.SystemError{Code: "Panic", Err: execErr})
		}
	}()

	result, err := runner.Run(ctx)
	res.Result = result
	switch {
	case errors.Is(err, sweep.ErrCancelled):
		finishRun(rec, runID, state.RunStatusCancelled, &state.SystemError{Code: "Interrupted", Err: err})
		res.ExitCode = ExitInterrupted
		return res, err
	case err != nil:
		finishRun(rec, runID, state.RunStatusFailed, &state.SystemError{Code: "EngineError", Err: err})
		return res, err
	}

	if failed := failedJobs(result, invocations); len(failed) > 0 {
		finishRun(rec, runID, state.RunStatusFailed, &state.JobsFailedError{Jobs: failed, Total: len(invocations)})
	} else {
		finishRun(rec, runID, state.RunStatusSucceeded, nil)
	}

	if result.OK() {
		res.ExitCode = ExitSuccess
	} else {
		res.ExitCode = ExitSweepFailure
	}
	return res, nil
}

func failedJobs(result *sweep.Result, invocations []core.Invocation) []state.FailedJob {
	lambdas := make(map[string]string, len(invocations))
	for _, i := range invocations {
		lambdas[i.ExpName] = i.LambdaText()
	}
	var out []state.FailedJob
	for _, name := range result.Failed() {
		fj := state.FailedJob{ExpName: name, Lambda: lambdas[name], ExitCode: -1, Reason: sweep.ReasonSpawnFailed}
		if jr := result.Jobs[name]; jr != nil {
			fj.ExitCode = jr.ExitCode
			fj.Reason = jr.FailureReason()
		}
		out = append(out, fj)
	}
	return out
}

func planResume(st *state.Store, inv CLIInvocation, sweepHash core.SweepHash, invocations []core.Invocation) (*state.ResumePlan, error) {
	known := make(map[string]string, len(invocations))
	for _, i := range invocations {
		known[i.ExpName] = i.LambdaText()
	}
	planner := &state.ResumePlanner{Store: st}
	plan, err := planner.Plan(sweepHash.String(), inv.ResumeFrom, known)
	if errors.Is(err, state.ErrNoResumableRun) && inv.ResumeFrom == "" {
		log.Info("no previous run to resume, starting from scratch", zap.String("sweepHash", sweepHash.Short()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("resuming previous run",
		zap.String("previousRunID", plan.Previous.RunID),
		zap.Int("completedJobs", len(plan.Completed)))
	return plan, nil
}

// recordEarlyFailure persists a run that failed before any job started.
func recordEarlyFailure(rec *state.FailureRecorder, run state.Run, cause error) {
	run.Status = state.RunStatusFailed
	if err := rec.StartRun(run); err != nil {
		log.Warn("record run failed", zap.String("runID", run.RunID), zap.Error(err))
		return
	}
	if err := rec.RecordFailure(run.RunID, cause); err != nil {
		log.Warn("record failure failed", zap.String("runID", run.RunID), zap.Error(err))
	}
}

func finishRun(rec *state.FailureRecorder, runID string, status state.RunStatus, cause error) {
	if cause != nil {
		if err := rec.RecordFailure(runID, cause); err != nil {
			log.Warn("record failure failed", zap.String("runID", runID), zap.Error(err))
		}
	}
	if err := rec.FinishRun(runID, status); err != nil {
		log.Warn("record run end failed", zap.String("runID", runID), zap.Error(err))
	}
}

func writeArtifacts(inv CLIInvocation, recorder *trace.Recorder, collector *metrics.Collector, sweepHash core.SweepHash) string {
	var traceHash string
	if inv.TracePath != "" {
		h, err := trace.WriteFile(inv.TracePath, recorder.Trace(sweepHash.String()))
		if err != nil {
			log.Warn("write trace failed", zap.String("path", inv.TracePath), zap.Error(err))
		} else {
			traceHash = h
			log.Info("trace written", zap.String("path", inv.TracePath), zap.String("traceHash", h))
		}
	}
	if inv.MetricsPath != "" {
		if err := collector.WriteFile(inv.MetricsPath); err != nil {
			log.Warn("write metrics failed", zap.String("path", inv.MetricsPath), zap.Error(err))
		}
	}
	return traceHash
}

// checkpointObserver persists the terminal state of every job.
type checkpointObserver struct {
	Store *state.Store
	RunID string
}

func (checkpointObserver) JobStarted(core.Invocation) {}

func (o checkpointObserver) JobFinished(inv core.Invocation, out sweep.Outcome) {
	cp := state.Checkpoint{
		ExpName:   inv.ExpName,
		Index:     inv.Index,
		Lambda:    inv.LambdaText(),
		State:     string(out.State),
		Reason:    out.Reason,
		Timestamp: time.Now().UTC(),
	}
	if out.Result != nil {
		cp.ExitCode = trace.IntPtr(out.Result.ExitCode)
		cp.DurationMS = out.Result.Duration.Milliseconds()
	}
	if err := o.Store.SaveCheckpoint(o.RunID, cp); err != nil {
		log.Warn("save checkpoint failed",
			zap.String("runID", o.RunID),
			zap.String("expName", inv.ExpName),
			zap.Error(err))
	}
}
