// Package engine implements the orchestrator control loop.
//
// The engine is the single owner of the workflow-wide state: all registry
// mutation and global state recomputation happen on one goroutine, fed by
// channels carrying component reports, command acknowledgements and
// operator requests. Everything derived from a registry snapshot (global
// state, global status, step size, command sequences) is computed from an
// immutable copy and is safe to share.
package engine
