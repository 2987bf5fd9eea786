package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/internal/dispatch"
	"cosim/orchestrator/internal/registry"
	"cosim/orchestrator/internal/stepsync"
	"cosim/orchestrator/internal/validator"
	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

// ErrEngineStopped is returned when a report or request is submitted after
// the engine stopped accepting input.
var ErrEngineStopped = errors.New("engine stopped")

// Transport delivers steering commands to local supervisors. Delivery is
// best effort: commands are idempotent and may be redelivered or reordered.
type Transport interface {
	Send(ctx context.Context, cmd types.SteeringCommand) error
}

// Engine drives the workflow: it records inbound reports, recomputes the
// global state and status, and issues steering commands to move the
// workflow forward or halt it safely on error.
type Engine struct {
	cfg       config.EngineConfig
	store     *registry.Store
	steps     *stepsync.Synchronizer
	disp      *dispatch.Dispatcher
	tracker   *dispatch.Tracker
	transport Transport

	reports chan types.ComponentReport
	acks    chan types.CommandAck
	ops     chan opRequest

	events       chan types.StateChangeEvent
	statusEvents chan types.StatusChangeEvent

	ackMu   sync.Mutex
	ackHist *hdrhistogram.Histogram

	// global and status are written only by the run goroutine; the mutex
	// makes them readable from the API surface.
	stateMu sync.RWMutex
	global  types.GlobalState
	status  types.GlobalStatus

	// initDispatched tracks whether the init broadcast went out, so the
	// report-driven and operator-driven paths do not both send it.
	initDispatched bool
	// draining is set once end commands went out; the engine stops
	// issuing step advances and waits for components to end.
	draining bool
	// operatorHold pins the workflow in paused after an operator pause.
	// Components keep reporting running until the pause command reaches
	// them; derivation must not walk the workflow back out in between.
	operatorHold bool

	started chan struct{}
	stopped chan struct{}
}

// New creates an engine around the given registry and transport.
func New(cfg config.EngineConfig, store *registry.Store, transport Transport) *Engine {
	e := &Engine{
		cfg:          cfg,
		store:        store,
		steps:        stepsync.NewSynchronizer(),
		disp:         dispatch.NewDispatcher(),
		transport:    transport,
		reports:      make(chan types.ComponentReport, cfg.ReportBuffer),
		acks:         make(chan types.CommandAck, cfg.ReportBuffer),
		ops:          make(chan opRequest),
		events:       make(chan types.StateChangeEvent, 100),
		statusEvents: make(chan types.StatusChangeEvent, 100),
		global:       types.GlobalStateInitializing,
		status:       types.GlobalStatusHealthy,
		started:      make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	e.ackHist = hdrhistogram.New(1, time.Minute.Microseconds(), 3)
	e.tracker = dispatch.NewTracker(func(latency time.Duration) {
		e.ackMu.Lock()
		_ = e.ackHist.RecordValue(latency.Microseconds())
		e.ackMu.Unlock()
	})
	return e
}

// SetTransport wires the command transport. The REST surface both feeds
// the engine and carries its commands, so it is attached after
// construction. Must be called before Run.
func (e *Engine) SetTransport(t Transport) { e.transport = t }

// Run executes the control loop until the context is cancelled. It must be
// called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	close(e.started)
	defer close(e.stopped)

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	logger.Info("engine started, global state %s", e.GlobalState())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case report := <-e.reports:
			e.handleReport(report)
		case ack := <-e.acks:
			e.handleAck(ack)
		case op := <-e.ops:
			op.reply <- e.handleOp(op)
		case now := <-ticker.C:
			e.sweep(now)
		}
	}
}

// SubmitReport hands a component report to the control loop. It never
// blocks the transport: a full buffer is an error the caller may retry.
func (e *Engine) SubmitReport(report types.ComponentReport) error {
	if !report.State.Valid() || !report.Status.Valid() {
		return fmt.Errorf("malformed report from %q: state=%q status=%q",
			report.ComponentID, report.State, report.Status)
	}
	if !report.HintValid() {
		return fmt.Errorf("malformed report from %q: step hint %v is not a positive finite value",
			report.ComponentID, *report.StepHint)
	}
	select {
	case e.reports <- report:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	default:
		return fmt.Errorf("report buffer full, dropping report from %s", report.ComponentID)
	}
}

// SubmitAck hands a command acknowledgement to the control loop.
func (e *Engine) SubmitAck(ack types.CommandAck) error {
	select {
	case e.acks <- ack:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	default:
		return fmt.Errorf("ack buffer full, dropping ack from %s", ack.ComponentID)
	}
}

// GlobalState returns the current workflow-wide lifecycle value.
func (e *Engine) GlobalState() types.GlobalState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.global
}

// GlobalStatus returns the current workflow-wide health value.
func (e *Engine) GlobalStatus() types.GlobalStatus {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.status
}

// Events returns the global state change stream.
func (e *Engine) Events() <-chan types.StateChangeEvent { return e.events }

// StatusEvents returns the global status change stream.
func (e *Engine) StatusEvents() <-chan types.StatusChangeEvent { return e.statusEvents }

// StepStats returns a summary of the step sizes chosen so far.
func (e *Engine) StepStats() stepsync.StepStats { return e.steps.Stats() }

// AckStats summarizes dispatch-to-acknowledgement latencies.
type AckStats struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// AckLatencyStats returns a summary of observed ack latencies.
func (e *Engine) AckLatencyStats() AckStats {
	e.ackMu.Lock()
	defer e.ackMu.Unlock()

	msec := float64(time.Millisecond.Microseconds())
	return AckStats{
		Count:  e.ackHist.TotalCount(),
		MeanMs: e.ackHist.Mean() / msec,
		P95Ms:  float64(e.ackHist.ValueAtQuantile(95)) / msec,
		MaxMs:  float64(e.ackHist.Max()) / msec,
	}
}

// handleReport records one inbound report and reacts to whatever global
// value the new snapshot derives. Malformed reports are rejected at the
// boundary and never reach the registry.
func (e *Engine) handleReport(report types.ComponentReport) {
	if e.GlobalState() == types.GlobalStateTerminated {
		logger.Debug("workflow terminated, ignoring report from %s", report.ComponentID)
		return
	}
	if err := e.store.Record(context.Background(), report); err != nil {
		logger.Warn("rejecting report: %v", err)
		return
	}
	e.advance(report.ComponentID)
}

// handleAck clears the pending entry for the acked verb and re-attempts
// any transition that was gated on it.
func (e *Engine) handleAck(ack types.CommandAck) {
	e.tracker.Ack(ack)
	logger.Debug("ack %s from %s", ack.Verb, ack.ComponentID)
	e.advance(ack.ComponentID)
}

// sweep escalates components that missed an ack deadline or went silent
// past the heartbeat timeout. Their status becomes down; their lifecycle
// state is untouched, so the global state only degrades if the component
// also reports an error.
func (e *Engine) sweep(now time.Time) {
	if e.GlobalState() == types.GlobalStateTerminated {
		// Components that ended cleanly are not escalated for going
		// silent afterwards.
		return
	}
	changed := false
	for _, id := range e.tracker.Overdue(now) {
		logger.Warn("component %s missed its ack deadline, marking down", id)
		if err := e.store.MarkDown(context.Background(), id); err == nil {
			changed = true
		}
	}
	for id, report := range e.store.Snapshot() {
		if report.Status == types.LocalStatusDown {
			continue
		}
		if now.Sub(report.ReceivedAt) > e.cfg.HeartbeatTimeout {
			logger.Warn("component %s heartbeat stale, marking down", id)
			if err := e.store.MarkDown(context.Background(), id); err == nil {
				changed = true
			}
		}
	}
	if changed {
		e.advance("")
	}
}

// advance recomputes global status and state from a fresh snapshot and
// walks the transition table toward the derived target, one gated hop at
// a time.
func (e *Engine) advance(trigger string) {
	snap := e.store.Snapshot()

	newStatus := validator.DeriveGlobalStatus(snap)
	if newStatus != e.GlobalStatus() {
		e.setStatus(newStatus, trigger)
	}

	current := e.GlobalState()
	if current.Terminal() {
		// Sticky: error clears only through an operator reset, and a
		// terminated workflow never restarts.
		return
	}

	target := validator.DeriveGlobalState(snap)
	if e.operatorHold && current == types.GlobalStatePaused && target != types.GlobalStateError {
		// Operator pause outranks derivation until resume; only a
		// component error breaks the hold.
		return
	}
	hopped := false
	if target != current {
		path, err := e.disp.Path(current, target)
		if err != nil {
			// A derived value the table cannot reach from here, such as a
			// late starting report while running. React to the next one.
			logger.Debug("no path from %s to derived %s: %v", current, target, err)
		} else {
			for _, next := range path {
				if !e.tryHop(next, trigger, snap) {
					break
				}
				hopped = true
			}
		}
	}

	if !hopped {
		e.maybeStep(snap)
	}
}

// tryHop attempts one transition. Returns false when the hop's gate is
// not yet satisfied; the next report or ack re-attempts it.
func (e *Engine) tryHop(to types.GlobalState, trigger string, snap types.Snapshot) bool {
	from := e.GlobalState()

	if e.draining {
		// End already went out; the remaining hops only track components
		// winding down. No further verbs, no ack gates.
		e.setGlobal(to, trigger)
		if to == types.GlobalStateTerminated {
			e.tracker.Clear()
		}
		return true
	}

	switch {
	case from == types.GlobalStateInitializing && to == types.GlobalStateSynchronizing:
		// Entering synchronizing requires every component to have
		// acknowledged init.
		if !e.initDispatched {
			e.broadcast(types.VerbInit, from)
			e.initDispatched = true
		}
		if !e.tracker.AllAcked(types.VerbInit) {
			return false
		}
		e.setGlobal(to, trigger)
		return true

	case from == types.GlobalStateSynchronizing && to == types.GlobalStateRunning:
		// Entering running requires a computed step: start is pointless
		// while no component can advance.
		step, err := e.steps.NextStep(snap)
		if err != nil {
			logger.Debug("holding in %s: %v", from, err)
			return false
		}
		e.broadcast(types.VerbStart, from)
		e.setGlobal(to, trigger)
		e.dispatchStep(step)
		return true

	default:
		cmds, err := e.disp.Transition(from, to)
		if err != nil {
			logger.Debug("hop rejected: %v", err)
			return false
		}
		for _, cmd := range cmds {
			e.send(cmd)
		}
		e.setGlobal(to, trigger)
		if to == types.GlobalStateError {
			// Error is entered with the end drain already dispatched:
			// components are never left running after a detected
			// inconsistency.
			e.draining = true
			logger.Error("workflow entered error state, draining components")
		}
		return true
	}
}

// maybeStep dispatches a step advance when the workflow may advance.
func (e *Engine) maybeStep(snap types.Snapshot) {
	if e.draining {
		return
	}
	current := e.GlobalState()
	if current != types.GlobalStateRunning && current != types.GlobalStateSynchronizing {
		return
	}
	step, err := e.steps.NextStep(snap)
	if err != nil {
		// Not an error condition: the workflow cannot advance yet and
		// waits for the next report.
		logger.Debug("cannot advance: %v", err)
		return
	}
	e.dispatchStep(step)
}

// dispatchStep broadcasts a step advance carrying the chosen step size.
func (e *Engine) dispatchStep(step float64) {
	cmd := dispatch.NewCommand(types.TargetAll, types.VerbStep, e.GlobalState(), &step)
	e.send(cmd)
}

// broadcast sends one verb to all registered components and arms the ack
// tracker for it.
func (e *Engine) broadcast(verb types.Verb, at types.GlobalState) {
	cmd := dispatch.NewCommand(types.TargetAll, verb, at, nil)
	e.tracker.Expect(verb, e.store.IDs(), e.cfg.AckTimeout)
	e.send(cmd)
}

func (e *Engine) send(cmd types.SteeringCommand) {
	if err := e.transport.Send(context.Background(), cmd); err != nil {
		// Transport is best effort; supervisors that miss a command are
		// caught by the ack sweep.
		logger.Warn("sending %s to %s: %v", cmd.Verb, cmd.Target, err)
	}
}

func (e *Engine) setGlobal(to types.GlobalState, trigger string) {
	e.stateMu.Lock()
	from := e.global
	e.global = to
	e.stateMu.Unlock()

	event := types.StateChangeEvent{
		Timestamp:   time.Now(),
		Previous:    from,
		New:         to,
		TriggeredBy: trigger,
	}
	logger.L().Info().
		Str("previous", string(from)).
		Str("new", string(to)).
		Str("triggered_by", trigger).
		Msg("global state changed")
	select {
	case e.events <- event:
	default:
		// Event buffer full, monitoring is behind; the log line above
		// still records the change.
	}
}

func (e *Engine) setStatus(to types.GlobalStatus, trigger string) {
	e.stateMu.Lock()
	from := e.status
	e.status = to
	e.stateMu.Unlock()

	event := types.StatusChangeEvent{
		Timestamp:   time.Now(),
		Previous:    from,
		New:         to,
		TriggeredBy: trigger,
	}
	logger.L().Info().
		Str("previous", string(from)).
		Str("new", string(to)).
		Str("triggered_by", trigger).
		Msg("global status changed")
	select {
	case e.statusEvents <- event:
	default:
	}
}
