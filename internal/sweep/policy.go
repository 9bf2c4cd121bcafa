package sweep

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what a failed job means for the rest of the sweep.
type FailurePolicy string

const (
	// PolicyContinue runs every job and reports the sweep as failed if any
	// job failed.
	PolicyContinue FailurePolicy = "continue"

	// PolicyStop skips all jobs not yet started after the first failure.
	PolicyStop FailurePolicy = "stop"

	// PolicyIgnore runs every job and reports success regardless of child
	// exit codes, like a plain shell loop.
	PolicyIgnore FailurePolicy = "ignore"
)

// ParseFailurePolicy normalizes a user supplied policy; empty means continue.
func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyContinue, nil
	case PolicyContinue, PolicyStop, PolicyIgnore:
		return p, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q (expected continue|stop|ignore)", raw)
	}
}
