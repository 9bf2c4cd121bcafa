// Package sweep runs the invocations of a sweep one child process per
// coefficient, in list order, under an explicit failure policy.
//
// The sweep has no dependency structure: every job is independent. What the
// runner does own is the per-job state machine, the decision of whether to
// keep going after a failure, and the reporting of every transition to an
// Observer and a trace.Sink.
package sweep
