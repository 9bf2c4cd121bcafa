package sweep

import "errors"

var (
	// ErrCancelled is returned (wrapped) when the context ends mid-sweep.
	ErrCancelled = errors.New("sweep cancelled")

	ErrNoJobs = errors.New("sweep has no jobs")
)
