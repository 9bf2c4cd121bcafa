// Package core defines the domain model of a hyperparameter sweep over an
// external training script.
//
// # Core Types
//
// SweepSpec: the coefficient list, base invocation and naming template.
// Invocation: one fully built argv for one coefficient.
// Executor: spawns a single invocation and reports its exit code.
//
// A SweepSpec is fixed before the sweep starts and is never mutated by the
// runner. Every coefficient yields exactly one Invocation and invocations do
// not share state.
package core
