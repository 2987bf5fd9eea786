// Package dispatch translates global state transitions into ordered
// steering command sequences and tracks their acknowledgement.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cosim/orchestrator/pkg/types"
)

// ErrIllegalTransition is returned for a transition absent from the table.
// The request is never silently coerced and no state is mutated.
var ErrIllegalTransition = errors.New("illegal global state transition")

// transition is one legal edge of the global state machine.
type transition struct {
	from, to types.GlobalState
	verbs    []types.Verb
}

// table is the fixed global state machine. Edges with no verbs are
// derivation-only: the global value drifts there as components report,
// without any command being issued. Error and terminated have no outgoing
// edges; clearing a sticky error is a separately-authorized reset, not a
// transition.
var table = []transition{
	{types.GlobalStateInitializing, types.GlobalStateSynchronizing, []types.Verb{types.VerbInit}},
	{types.GlobalStateInitializing, types.GlobalStateError, []types.Verb{types.VerbEnd}},

	{types.GlobalStateSynchronizing, types.GlobalStateRunning, []types.Verb{types.VerbStart}},
	{types.GlobalStateSynchronizing, types.GlobalStatePaused, nil},
	{types.GlobalStateSynchronizing, types.GlobalStateTerminated, []types.Verb{types.VerbEnd}},
	{types.GlobalStateSynchronizing, types.GlobalStateError, []types.Verb{types.VerbEnd}},

	{types.GlobalStateRunning, types.GlobalStatePaused, []types.Verb{types.VerbPause}},
	{types.GlobalStateRunning, types.GlobalStateSynchronizing, nil},
	{types.GlobalStateRunning, types.GlobalStateTerminated, []types.Verb{types.VerbEnd}},
	{types.GlobalStateRunning, types.GlobalStateError, []types.Verb{types.VerbEnd}},

	{types.GlobalStatePaused, types.GlobalStateSynchronizing, []types.Verb{types.VerbResume}},
	{types.GlobalStatePaused, types.GlobalStateTerminated, []types.Verb{types.VerbEnd}},
	{types.GlobalStatePaused, types.GlobalStateError, []types.Verb{types.VerbEnd}},
}

// Dispatcher builds steering command sequences from the transition table.
type Dispatcher struct{}

// NewDispatcher creates a dispatcher.
func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Sequence returns the ordered verbs for a single transition, or
// ErrIllegalTransition when the edge is not in the table.
func (d *Dispatcher) Sequence(from, to types.GlobalState) ([]types.Verb, error) {
	for _, t := range table {
		if t.from == from && t.to == to {
			return t.verbs, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// Transition returns the broadcast steering commands for a single legal
// transition, stamped with the state they were issued at.
func (d *Dispatcher) Transition(from, to types.GlobalState) ([]types.SteeringCommand, error) {
	verbs, err := d.Sequence(from, to)
	if err != nil {
		return nil, err
	}
	cmds := make([]types.SteeringCommand, 0, len(verbs))
	for _, v := range verbs {
		cmds = append(cmds, NewCommand(types.TargetAll, v, from, nil))
	}
	return cmds, nil
}

// Path returns the chain of intermediate states from one global state to
// another, following only table edges. A derived target that is more than
// one hop away (starting components that all reach running, for instance)
// is walked through synchronizing rather than jumped to directly.
func (d *Dispatcher) Path(from, to types.GlobalState) ([]types.GlobalState, error) {
	if from == to {
		return nil, nil
	}

	// Breadth-first over the table; it is small and acyclic enough that
	// the shortest chain is the correct one. The ordered slice keeps the
	// search deterministic.
	type node struct {
		state types.GlobalState
		path  []types.GlobalState
	}
	visited := map[types.GlobalState]bool{from: true}
	queue := []node{{state: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range table {
			if t.from != cur.state || visited[t.to] {
				continue
			}
			next := append(append([]types.GlobalState{}, cur.path...), t.to)
			if t.to == to {
				return next, nil
			}
			visited[t.to] = true
			queue = append(queue, node{state: t.to, path: next})
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// NewCommand creates a steering command. Commands carry a fresh id but are
// idempotent on the receiving side: redelivery of an already-executed verb
// is a no-op for the supervisor.
func NewCommand(target string, verb types.Verb, at types.GlobalState, step *float64) types.SteeringCommand {
	return types.SteeringCommand{
		ID:            uuid.New().String(),
		Target:        target,
		Verb:          verb,
		WorkflowState: at,
		StepSize:      step,
		IssuedAt:      time.Now(),
	}
}
