package types

import (
	"math"
	"time"
)

// LocalState represents the lifecycle state of a single component, as
// reported by its local supervisor.
type LocalState string

const (
	// LocalStateStarting indicates the component is still setting up.
	LocalStateStarting LocalState = "starting"
	// LocalStateRunning indicates the component is executing.
	LocalStateRunning LocalState = "running"
	// LocalStatePaused indicates the component is suspended.
	LocalStatePaused LocalState = "paused"
	// LocalStateEnded indicates the component finished and exited cleanly.
	LocalStateEnded LocalState = "ended"
	// LocalStateError indicates the component failed.
	LocalStateError LocalState = "error"
)

// Valid reports whether s is a known local state.
func (s LocalState) Valid() bool {
	switch s {
	case LocalStateStarting, LocalStateRunning, LocalStatePaused,
		LocalStateEnded, LocalStateError:
		return true
	}
	return false
}

// LocalStatus is the health signal of a component, independent of its
// lifecycle state. A component can be running but degraded.
type LocalStatus string

const (
	// LocalStatusUp indicates the component is healthy.
	LocalStatusUp LocalStatus = "up"
	// LocalStatusDown indicates the component is unreachable or dead.
	LocalStatusDown LocalStatus = "down"
	// LocalStatusDegraded indicates the component is alive but impaired.
	LocalStatusDegraded LocalStatus = "degraded"
)

// Valid reports whether s is a known local status.
func (s LocalStatus) Valid() bool {
	switch s {
	case LocalStatusUp, LocalStatusDown, LocalStatusDegraded:
		return true
	}
	return false
}

// ComponentInfo contains component registration information.
type ComponentInfo struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Address string            `json:"address,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// ComponentReport is one local state/status sample from a supervisor.
// Reports are immutable once created; a later report from the same
// component supersedes the earlier one in the registry, it never mutates
// it in place.
type ComponentReport struct {
	ComponentID string     `json:"component_id"`
	State       LocalState `json:"state"`
	Status      LocalStatus `json:"status"`

	// StepHint is the largest interval the component can safely advance,
	// in simulated time units. Nil when the component offers no hint.
	StepHint *float64 `json:"step_hint,omitempty"`

	// Timestamp is the supervisor-side sample time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// ReceivedAt is stamped by the orchestrator on arrival. Arrival order,
	// not Timestamp, decides which report is most recent.
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// HintValid reports whether the step hint, if present, is a positive
// finite value. A hint is an offer of simulated time to advance; zero,
// negative, NaN and infinite offers are meaningless.
func (r ComponentReport) HintValid() bool {
	if r.StepHint == nil {
		return true
	}
	h := *r.StepHint
	return !math.IsNaN(h) && !math.IsInf(h, 0) && h > 0
}

// Snapshot is an immutable point-in-time view of the registry, keyed by
// component id. All derivations (global state, global status, step size)
// operate on snapshots only.
type Snapshot map[string]ComponentReport

// Empty reports whether the snapshot contains no components.
func (s Snapshot) Empty() bool { return len(s) == 0 }

// AnyState reports whether any component is in the given local state.
func (s Snapshot) AnyState(state LocalState) bool {
	for _, r := range s {
		if r.State == state {
			return true
		}
	}
	return false
}

// AllState reports whether every component is in the given local state.
// Returns false for an empty snapshot.
func (s Snapshot) AllState(state LocalState) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r.State != state {
			return false
		}
	}
	return true
}

// AnyStatus reports whether any component has the given local status.
func (s Snapshot) AnyStatus(status LocalStatus) bool {
	for _, r := range s {
		if r.Status == status {
			return true
		}
	}
	return false
}
