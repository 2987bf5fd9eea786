package engine

import (
	"context"
	"errors"
	"fmt"

	"cosim/orchestrator/internal/dispatch"
	"cosim/orchestrator/internal/validator"
	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

// ErrResetNotAllowed is returned when operator reset is disabled or the
// workflow is not in a resettable condition.
var ErrResetNotAllowed = errors.New("operator reset not allowed")

// Operation is an operator-level steering request.
type Operation string

const (
	// OpInit broadcasts init to all components.
	OpInit Operation = "init"
	// OpStart forces the synchronizing-to-running transition.
	OpStart Operation = "start"
	// OpPause suspends the running workflow.
	OpPause Operation = "pause"
	// OpResume resumes a paused workflow.
	OpResume Operation = "resume"
	// OpEnd drains all components into termination.
	OpEnd Operation = "end"
	// OpReset clears a sticky error state. Separately authorized; it is
	// not a regular transition.
	OpReset Operation = "reset"
)

type opRequest struct {
	op    Operation
	reply chan error
}

// Started is closed once the control loop is running.
func (e *Engine) Started() <-chan struct{} { return e.started }

// Steer submits an operator steering request and waits for the loop to
// apply or reject it.
func (e *Engine) Steer(ctx context.Context, op Operation) error {
	req := opRequest{op: op, reply: make(chan error, 1)}
	select {
	case e.ops <- req:
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleOp runs on the control loop goroutine. Transition errors are
// surfaced synchronously to whatever triggered the attempt.
func (e *Engine) handleOp(req opRequest) error {
	current := e.GlobalState()
	logger.Info("operator %s requested in state %s", req.op, current)

	switch req.op {
	case OpInit:
		if current != types.GlobalStateInitializing {
			return fmt.Errorf("%w: %s -> %s", dispatch.ErrIllegalTransition, current, types.GlobalStateSynchronizing)
		}
		if !e.initDispatched {
			e.broadcast(types.VerbInit, current)
			e.initDispatched = true
		}
		e.advance("")
		return nil

	case OpStart:
		if current != types.GlobalStateSynchronizing {
			return fmt.Errorf("%w: %s -> %s", dispatch.ErrIllegalTransition, current, types.GlobalStateRunning)
		}
		if !e.tracker.AllAcked(types.VerbInit) {
			return fmt.Errorf("start gated: not all components acknowledged init")
		}
		if !e.tryHop(types.GlobalStateRunning, "", e.store.Snapshot()) {
			return fmt.Errorf("cannot start: no step available yet")
		}
		return nil

	case OpPause:
		if _, err := e.disp.Sequence(current, types.GlobalStatePaused); err != nil {
			return err
		}
		e.broadcast(types.VerbPause, current)
		e.operatorHold = true
		e.setGlobal(types.GlobalStatePaused, "")
		return nil

	case OpResume:
		if current != types.GlobalStatePaused {
			return fmt.Errorf("%w: %s -> %s", dispatch.ErrIllegalTransition, current, types.GlobalStateSynchronizing)
		}
		e.operatorHold = false
		e.broadcast(types.VerbResume, current)
		e.setGlobal(types.GlobalStateSynchronizing, "")
		e.advance("")
		return nil

	case OpEnd:
		if current.Terminal() {
			return fmt.Errorf("%w: %s -> %s", dispatch.ErrIllegalTransition, current, types.GlobalStateTerminated)
		}
		// Cancel whatever the loop was waiting on; commands already sent
		// are not retracted, they are idempotent.
		e.tracker.Clear()
		e.draining = true
		e.operatorHold = false
		e.broadcast(types.VerbEnd, current)
		e.advance("")
		return nil

	case OpReset:
		return e.handleReset()

	default:
		return fmt.Errorf("unknown operation %q", req.op)
	}
}

// handleReset clears a sticky error. It refuses while any component still
// reports an error: resuming a desynchronized simulation silently would
// corrupt results, so the failing component must be dealt with outside
// the workflow first.
func (e *Engine) handleReset() error {
	if !e.cfg.AllowOperatorReset {
		return ErrResetNotAllowed
	}
	if e.GlobalState() != types.GlobalStateError {
		return fmt.Errorf("%w: workflow is not in error state", ErrResetNotAllowed)
	}
	snap := e.store.Snapshot()
	if validator.DeriveGlobalState(snap) == types.GlobalStateError {
		return fmt.Errorf("%w: a component still reports an error", ErrResetNotAllowed)
	}

	e.draining = false
	e.initDispatched = false
	e.operatorHold = false
	e.setGlobal(types.GlobalStateInitializing, "")
	logger.Warn("operator reset applied, workflow back to %s", types.GlobalStateInitializing)
	e.advance("")
	return nil
}
