package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"awacsweep/internal/core"
	"awacsweep/internal/trace"
)

// Reason codes recorded in traces and outcomes.
const (
	ReasonNonZeroExit = "NonZeroExit"
	ReasonSpawnFailed = "SpawnFailed"
	ReasonStopOnError = "StopOnError"
	ReasonCancelled   = "Cancelled"
	ReasonPreviousRun = "PreviousRun"
)

// JobRunner executes a single invocation.
//
// A non-zero exit is reported through JobResult. A non-nil error means the
// job could not be run at all; when the context is still live the runner
// treats that as a spawn failure of this job, otherwise as cancellation.
type JobRunner interface {
	Run(ctx context.Context, inv core.Invocation) (*JobResult, error)
}

// ExecutorJobRunner runs jobs as real child processes.
type ExecutorJobRunner struct {
	Executor *core.Executor
}

func (e ExecutorJobRunner) Run(ctx context.Context, inv core.Invocation) (*JobResult, error) {
	res, err := e.Executor.Execute(ctx, inv)
	if err != nil {
		return nil, err
	}
	return &JobResult{ExitCode: res.ExitCode, Duration: res.Duration, LogPath: res.LogPath}, nil
}

// Runner executes a sweep.
type Runner struct {
	Invocations []core.Invocation
	Jobs        JobRunner
	Policy      FailurePolicy

	// Parallel is the maximum number of concurrent children; values below 2
	// mean strictly sequential execution.
	Parallel int

	// Completed names jobs that succeeded in a previous run; they are marked
	// RESUMED and not executed.
	Completed map[string]bool

	SweepHash core.SweepHash
	Observer  Observer
	Sink      trace.Sink

	mu      sync.Mutex
	obsMu   sync.Mutex
	state   ExecutionState
	stopped atomic.Bool
	result  *Result
}

// NewRunner validates the invocation list and returns a runner with the
// continue policy and sequential execution.
func NewRunner(invocations []core.Invocation, jobs JobRunner) (*Runner, error) {
	if len(invocations) == 0 {
		return nil, ErrNoJobs
	}
	if jobs == nil {
		return nil, errors.New("nil job runner")
	}
	seen := make(map[string]bool, len(invocations))
	for i, inv := range invocations {
		if inv.ExpName == "" {
			return nil, fmt.Errorf("invocation %d has no experiment name", i)
		}
		if seen[inv.ExpName] {
			return nil, fmt.Errorf("duplicate experiment name %q", inv.ExpName)
		}
		seen[inv.ExpName] = true
	}
	return &Runner{Invocations: invocations, Jobs: jobs, Policy: PolicyContinue, Parallel: 1, Sink: trace.NopSink{}}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (r *Runner) StateSnapshot() ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(ExecutionState, len(r.state))
	for k, v := range r.state {
		cp[k] = v
	}
	return cp
}

// Run executes the sweep. The returned Result is always non-nil once the
// sweep started; err wraps ErrCancelled when ctx ended before every job
// reached a terminal state.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	policy, err := ParseFailurePolicy(string(r.Policy))
	if err != nil {
		return nil, err
	}
	r.Policy = policy

	order := make([]string, len(r.Invocations))
	r.state = make(ExecutionState, len(r.Invocations))
	for i, inv := range r.Invocations {
		order[i] = inv.ExpName
		r.state[inv.ExpName] = JobPending
	}
	r.stopped.Store(false)
	r.result = &Result{
		SweepHash: r.SweepHash,
		Policy:    policy,
		Jobs:      make(map[string]*JobResult, len(r.Invocations)),
		Order:     order,
	}

	log.Info("sweep started",
		zap.String("sweepHash", r.SweepHash.Short()),
		zap.Int("jobs", len(r.Invocations)),
		zap.String("policy", string(policy)),
		zap.Int("parallel", r.parallel()))

	for _, inv := range r.Invocations {
		if r.Completed[inv.ExpName] {
			r.resume(inv)
		}
	}

	if r.parallel() > 1 {
		err = r.runParallel(ctx)
	} else {
		err = r.runSerial(ctx)
	}

	reason := ReasonStopOnError
	if errors.Is(err, ErrCancelled) {
		reason = ReasonCancelled
	}
	r.skipRemaining(reason)

	res := r.result
	res.FinalState = r.StateSnapshot()
	r.logSummary(res)
	return res, err
}

func (r *Runner) parallel() int {
	if r.Parallel < 1 {
		return 1
	}
	return r.Parallel
}

func (r *Runner) runSerial(ctx context.Context) error {
	for _, inv := range r.Invocations {
		if r.stopped.Load() {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		started, err := r.begin(inv)
		if err != nil {
			return err
		}
		if !started {
			continue
		}
		if err := r.execute(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

// runParallel keeps up to Parallel children running. Jobs are started in
// list order: the RUNNING transition happens on the dispatching goroutine.
func (r *Runner) runParallel(ctx context.Context) error {
	var g errgroup.Group
	sem := make(chan struct{}, r.parallel())

	var dispatchErr error
dispatch:
	for _, inv := range r.Invocations {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			dispatchErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			break dispatch
		}
		if r.stopped.Load() {
			<-sem
			break
		}
		if ctx.Err() != nil {
			<-sem
			dispatchErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			break
		}
		started, err := r.begin(inv)
		if err != nil {
			<-sem
			dispatchErr = err
			break
		}
		if !started {
			<-sem
			continue
		}
		inv := inv
		g.Go(func() error {
			defer func() { <-sem }()
			return r.execute(ctx, inv)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return dispatchErr
}

// begin moves a pending job to RUNNING. It returns false for jobs that are
// already terminal (resumed).
func (r *Runner) begin(inv core.Invocation) (bool, error) {
	r.mu.Lock()
	if IsTerminal(r.state[inv.ExpName]) {
		r.mu.Unlock()
		return false, nil
	}
	if err := Transition(r.state, inv.ExpName, JobPending, JobRunning); err != nil {
		r.mu.Unlock()
		return false, err
	}
	r.result.StartOrder = append(r.result.StartOrder, inv.ExpName)
	r.mu.Unlock()

	log.Info("sweep job started",
		zap.Int("index", inv.Index),
		zap.String("expName", inv.ExpName),
		zap.String("lambda", inv.LambdaText()),
		zap.Strings("argv", inv.Argv))
	trace.SafeRecord(r.Sink, trace.Event{Kind: trace.EventJobStarted, Index: inv.Index, ExpName: inv.ExpName, Lambda: inv.LambdaText()})
	r.notifyStarted(inv)
	return true, nil
}

// execute runs a job that is already RUNNING and records its terminal state.
func (r *Runner) execute(ctx context.Context, inv core.Invocation) error {
	jr, err := r.Jobs.Run(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			r.finish(inv, JobFailed, &JobResult{ExitCode: -1}, ReasonCancelled)
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		jr = &JobResult{ExitCode: -1, SpawnErr: err}
	}
	if jr == nil {
		jr = &JobResult{ExitCode: -1, SpawnErr: errors.New("job runner returned no result")}
	}

	switch {
	case jr.SpawnErr != nil:
		if jr.ExitCode == 0 {
			jr.ExitCode = -1
		}
		r.finish(inv, JobFailed, jr, ReasonSpawnFailed)
	case jr.ExitCode != 0:
		r.finish(inv, JobFailed, jr, ReasonNonZeroExit)
	default:
		r.finish(inv, JobSucceeded, jr, "")
	}
	return nil
}

func (r *Runner) finish(inv core.Invocation, to JobState, jr *JobResult, reason string) {
	r.mu.Lock()
	if err := Transition(r.state, inv.ExpName, JobRunning, to); err != nil {
		// Only reachable through a runner bug; keep the sweep going.
		log.Error("sweep job state transition failed", zap.String("expName", inv.ExpName), zap.Error(err))
	}
	r.result.Jobs[inv.ExpName] = jr
	r.mu.Unlock()

	ev := trace.Event{Index: inv.Index, ExpName: inv.ExpName, Lambda: inv.LambdaText(), ExitCode: trace.IntPtr(jr.ExitCode), Reason: reason}
	if to == JobSucceeded {
		ev.Kind = trace.EventJobSucceeded
		log.Info("sweep job succeeded",
			zap.String("expName", inv.ExpName),
			zap.Duration("duration", jr.Duration))
	} else {
		ev.Kind = trace.EventJobFailed
		fields := []zap.Field{
			zap.String("expName", inv.ExpName),
			zap.String("lambda", inv.LambdaText()),
			zap.Int("exitCode", jr.ExitCode),
			zap.String("reason", reason),
			zap.Duration("duration", jr.Duration),
		}
		if jr.SpawnErr != nil {
			fields = append(fields, zap.Error(jr.SpawnErr))
		}
		log.Warn("sweep job failed", fields...)
		if r.Policy == PolicyStop && reason != ReasonCancelled {
			r.stopped.Store(true)
		}
	}
	trace.SafeRecord(r.Sink, ev)
	r.notifyFinished(inv, Outcome{State: to, Result: jr, Reason: reason})
}

func (r *Runner) resume(inv core.Invocation) {
	r.mu.Lock()
	err := Transition(r.state, inv.ExpName, JobPending, JobResumed)
	r.mu.Unlock()
	if err != nil {
		log.Error("sweep job resume failed", zap.String("expName", inv.ExpName), zap.Error(err))
		return
	}
	log.Info("sweep job already completed, skipping", zap.String("expName", inv.ExpName))
	trace.SafeRecord(r.Sink, trace.Event{Kind: trace.EventJobResumed, Index: inv.Index, ExpName: inv.ExpName, Lambda: inv.LambdaText(), Reason: ReasonPreviousRun})
	r.notifyFinished(inv, Outcome{State: JobResumed, Reason: ReasonPreviousRun})
}

func (r *Runner) skipRemaining(reason string) {
	r.mu.Lock()
	skipped := SkipPending(r.state, r.result.Order)
	r.mu.Unlock()
	if len(skipped) == 0 {
		return
	}
	log.Warn("sweep jobs skipped", zap.Strings("expNames", skipped), zap.String("reason", reason))

	byName := make(map[string]core.Invocation, len(r.Invocations))
	for _, inv := range r.Invocations {
		byName[inv.ExpName] = inv
	}
	for _, name := range skipped {
		inv := byName[name]
		trace.SafeRecord(r.Sink, trace.Event{Kind: trace.EventJobSkipped, Index: inv.Index, ExpName: name, Lambda: inv.LambdaText(), Reason: reason})
		r.notifyFinished(inv, Outcome{State: JobSkipped, Reason: reason})
	}
}

func (r *Runner) notifyStarted(inv core.Invocation) {
	if r.Observer == nil {
		return
	}
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.Observer.JobStarted(inv)
}

func (r *Runner) notifyFinished(inv core.Invocation, out Outcome) {
	if r.Observer == nil {
		return
	}
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.Observer.JobFinished(inv, out)
}

func (r *Runner) logSummary(res *Result) {
	secs := make([]float64, 0, len(res.Jobs))
	for _, jr := range res.Jobs {
		secs = append(secs, jr.Duration.Seconds())
	}
	fields := []zap.Field{
		zap.String("sweepHash", r.SweepHash.Short()),
		zap.Int("succeeded", res.Count(JobSucceeded)),
		zap.Int("failed", res.Count(JobFailed)),
		zap.Int("skipped", res.Count(JobSkipped)),
		zap.Int("resumed", res.Count(JobResumed)),
	}
	if len(secs) > 0 {
		fields = append(fields,
			zap.Duration("meanJobDuration", secondsToDuration(stat.Mean(secs, nil))),
			zap.Duration("maxJobDuration", secondsToDuration(floats.Max(secs))))
	}
	if failed := res.Failed(); len(failed) > 0 {
		fields = append(fields, zap.Strings("failedJobs", failed))
	}
	log.Info("sweep finished", fields...)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
