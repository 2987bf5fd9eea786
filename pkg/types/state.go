package types

// GlobalState is the single workflow-wide lifecycle value, derived from the
// full set of current component reports. It is owned exclusively by the
// orchestrator; no component may set it directly.
type GlobalState string

const (
	// GlobalStateInitializing indicates components are still setting up.
	GlobalStateInitializing GlobalState = "initializing"
	// GlobalStateSynchronizing indicates the workflow is transitioning
	// between stable phases and must not be treated as stably running.
	GlobalStateSynchronizing GlobalState = "synchronizing"
	// GlobalStateRunning indicates all components are executing.
	GlobalStateRunning GlobalState = "running"
	// GlobalStatePaused indicates the workflow is suspended.
	GlobalStatePaused GlobalState = "paused"
	// GlobalStateError indicates a component failed. Sticky: only an
	// explicit operator reset clears it.
	GlobalStateError GlobalState = "error"
	// GlobalStateTerminated indicates all components ended. Terminal.
	GlobalStateTerminated GlobalState = "terminated"
)

// Terminal reports whether the state has no automatic outgoing transition.
func (s GlobalState) Terminal() bool {
	return s == GlobalStateError || s == GlobalStateTerminated
}

// GlobalStatus is the workflow-wide health value, derived from all
// components' local statuses.
type GlobalStatus string

const (
	// GlobalStatusHealthy indicates every component is up.
	GlobalStatusHealthy GlobalStatus = "healthy"
	// GlobalStatusDegraded indicates at least one component is degraded
	// and none are down.
	GlobalStatusDegraded GlobalStatus = "degraded"
	// GlobalStatusFailed indicates at least one component is down.
	GlobalStatusFailed GlobalStatus = "failed"
)
