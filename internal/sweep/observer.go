package sweep

import "awacsweep/internal/core"

// Observer is notified of job transitions. Calls are serialized by the
// runner, so implementations need no locking of their own.
type Observer interface {
	JobStarted(inv core.Invocation)
	JobFinished(inv core.Invocation, out Outcome)
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) JobStarted(inv core.Invocation) {
	for _, ob := range o {
		if ob != nil {
			ob.JobStarted(inv)
		}
	}
}

func (o Observers) JobFinished(inv core.Invocation, out Outcome) {
	for _, ob := range o {
		if ob != nil {
			ob.JobFinished(inv, out)
		}
	}
}
