// Package types defines the core data structures for the co-simulation
// orchestrator.
//
// This package contains all the fundamental types shared between the
// orchestrator and the local supervisors, including:
//   - Local and global lifecycle states and health statuses
//   - Component reports and registry snapshots
//   - Steering commands and acknowledgements
//   - State change events for external monitoring
package types
