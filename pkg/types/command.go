package types

import "time"

// Verb is the imperative carried by a steering command.
type Verb string

const (
	// VerbInit instructs a component to prepare for execution and respond
	// with its step-size offer.
	VerbInit Verb = "init"
	// VerbStart instructs a component to begin advancing.
	VerbStart Verb = "start"
	// VerbPause instructs a component to suspend at the next safe point.
	VerbPause Verb = "pause"
	// VerbResume instructs a paused component to prepare to advance again.
	VerbResume Verb = "resume"
	// VerbEnd instructs a component to finish and exit cleanly.
	VerbEnd Verb = "end"
	// VerbStep instructs a component to advance by the attached step size.
	// Issued directly by the engine once a step is computed; it is not part
	// of the lifecycle transition table.
	VerbStep Verb = "step"
)

// TargetAll addresses a steering command to every registered component.
const TargetAll = "all"

// SteeringCommand directs a component (or all components) to change
// lifecycle phase. Commands are idempotent and safely re-deliverable:
// repeated delivery of the same verb to a component that already executed
// it is a no-op. A command is never retracted once sent.
type SteeringCommand struct {
	ID     string `json:"id"`
	Target string `json:"target"` // component id or TargetAll
	Verb   Verb   `json:"verb"`

	// WorkflowState is the global state at the moment the command was
	// issued, so supervisors can detect stale redeliveries.
	WorkflowState GlobalState `json:"workflow_state"`

	// StepSize is set only for VerbStep commands.
	StepSize *float64 `json:"step_size,omitempty"`

	IssuedAt time.Time `json:"issued_at"`
}

// CommandAck acknowledges that a component executed a steering command.
type CommandAck struct {
	CommandID   string    `json:"command_id"`
	ComponentID string    `json:"component_id"`
	Verb        Verb      `json:"verb"`
	Timestamp   time.Time `json:"timestamp"`
}
