// Package validator derives the workflow-wide state and status from a
// registry snapshot.
//
// The derivation is pure and deterministic: identical snapshots always
// yield identical global values, regardless of the order in which the
// reports were recorded.
package validator

import (
	"cosim/orchestrator/pkg/types"
)

// DeriveGlobalState maps a registry snapshot to the single workflow-wide
// lifecycle value. Rules are checked in priority order, first match wins:
//
//  1. any component in error        -> error (sticky, cleared only by an
//     operator reset external to the derivation)
//  2. any component starting        -> initializing
//  3. all components ended          -> terminated
//  4. any paused and none running   -> paused
//  5. all components running        -> running
//  6. otherwise (mixed, no error)   -> synchronizing
//
// An empty snapshot derives initializing: nothing has reported yet.
func DeriveGlobalState(snap types.Snapshot) types.GlobalState {
	if snap.Empty() {
		return types.GlobalStateInitializing
	}
	switch {
	case snap.AnyState(types.LocalStateError):
		return types.GlobalStateError
	case snap.AnyState(types.LocalStateStarting):
		return types.GlobalStateInitializing
	case snap.AllState(types.LocalStateEnded):
		return types.GlobalStateTerminated
	case snap.AnyState(types.LocalStatePaused) && !snap.AnyState(types.LocalStateRunning):
		return types.GlobalStatePaused
	case snap.AllState(types.LocalStateRunning):
		return types.GlobalStateRunning
	default:
		return types.GlobalStateSynchronizing
	}
}

// DeriveGlobalStatus maps a registry snapshot to the workflow-wide health
// value: failed if any component is down, degraded if any is degraded and
// none down, healthy otherwise.
func DeriveGlobalStatus(snap types.Snapshot) types.GlobalStatus {
	switch {
	case snap.AnyStatus(types.LocalStatusDown):
		return types.GlobalStatusFailed
	case snap.AnyStatus(types.LocalStatusDegraded):
		return types.GlobalStatusDegraded
	default:
		return types.GlobalStatusHealthy
	}
}
