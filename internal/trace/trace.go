package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SweepTrace is the canonical record of the decisions a sweep made per job.
//
// It carries no timestamps or durations: two runs of the same sweep whose
// children exit the same way produce byte-identical traces. The trace is
// observational only and never affects execution.
type SweepTrace struct {
	SweepHash string
	Events    []Event
}

// EventKind discriminates Event. The string values are part of the
// canonical bytes; do not rename.
type EventKind string

const (
	EventJobResumed   EventKind = "JobResumed"
	EventJobStarted   EventKind = "JobStarted"
	EventJobSucceeded EventKind = "JobSucceeded"
	EventJobFailed    EventKind = "JobFailed"
	EventJobSkipped   EventKind = "JobSkipped"
)

// Event is a single logical transition of one job.
type Event struct {
	Kind EventKind

	// Index is the job's position in the coefficient list.
	Index int

	ExpName string

	// Lambda is the coefficient exactly as passed on the command line.
	Lambda string

	// ExitCode is set for JobSucceeded and JobFailed.
	ExitCode *int

	// Reason is a stable reason code, e.g. "NonZeroExit", "SpawnFailed",
	// "StopOnError", "Cancelled", "PreviousRun".
	Reason string
}

// IntPtr is a convenience for populating Event.ExitCode.
func IntPtr(v int) *int { return &v }

// Validate checks basic invariants and returns a descriptive error.
func (t *SweepTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.SweepHash == "" {
		return errors.New("sweepHash is required")
	}
	for i, e := range t.Events {
		if kindOrder(e.Kind) == 0 {
			return fmt.Errorf("events[%d]: unknown kind %q", i, e.Kind)
		}
		if e.ExpName == "" {
			return fmt.Errorf("events[%d].expName is required", i)
		}
		if e.Index < 0 {
			return fmt.Errorf("events[%d].index must be >= 0", i)
		}
		switch e.Kind {
		case EventJobSucceeded, EventJobFailed:
			if e.ExitCode == nil {
				return fmt.Errorf("events[%d].exitCode is required for kind %q", i, e.Kind)
			}
		}
	}
	return nil
}

// Canonicalize sorts events by (index, kind order, reason). With parallel
// jobs the recording order depends on timing; the canonical order does not.
func (t *SweepTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		return a.Reason < b.Reason
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventJobResumed:
		return 10
	case EventJobStarted:
		return 20
	case EventJobSucceeded:
		return 30
	case EventJobFailed:
		return 40
	case EventJobSkipped:
		return 50
	default:
		return 0
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace without
// mutating the receiver.
func (t SweepTrace) CanonicalJSON() ([]byte, error) {
	cp := SweepTrace{SweepHash: t.SweepHash, Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t SweepTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes field order.
func (t SweepTrace) MarshalJSON() ([]byte, error) {
	if t.SweepHash == "" {
		return nil, errors.New("sweepHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"sweepHash":`)
	h, _ := json.Marshal(t.SweepHash)
	buf.Write(h)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeJSONField(&buf, "kind", string(e.Kind), true)
	writeJSONField(&buf, "index", e.Index, false)
	writeJSONField(&buf, "expName", e.ExpName, false)
	if e.Lambda != "" {
		writeJSONField(&buf, "lambda", e.Lambda, false)
	}
	if e.ExitCode != nil {
		writeJSONField(&buf, "exitCode", *e.ExitCode, false)
	}
	if e.Reason != "" {
		writeJSONField(&buf, "reason", e.Reason, false)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONField(buf *bytes.Buffer, name string, v any, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(name)
	buf.WriteString(`":`)
	b, _ := json.Marshal(v)
	buf.Write(b)
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind     EventKind `json:"kind"`
		Index    int       `json:"index"`
		ExpName  string    `json:"expName"`
		Lambda   string    `json:"lambda"`
		ExitCode *int      `json:"exitCode"`
		Reason   string    `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Kind: raw.Kind, Index: raw.Index, ExpName: raw.ExpName, Lambda: raw.Lambda, ExitCode: raw.ExitCode, Reason: raw.Reason}
	return nil
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (t *SweepTrace) UnmarshalJSON(data []byte) error {
	var raw struct {
		SweepHash string  `json:"sweepHash"`
		Events    []Event `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.SweepHash = raw.SweepHash
	t.Events = raw.Events
	return nil
}
