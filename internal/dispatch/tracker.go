package dispatch

import (
	"sync"
	"time"

	"cosim/orchestrator/pkg/types"
)

// pendingAck is one component that has not yet acknowledged a verb.
type pendingAck struct {
	componentID  string
	verb         types.Verb
	dispatchedAt time.Time
	deadline     time.Time
}

// Tracker records which components still owe an acknowledgement for a
// dispatched verb. Multi-target sequences are gated on it: start is not
// issued until every component acked init, so no component receives start
// while a sibling is still initializing.
type Tracker struct {
	mu      sync.Mutex
	pending map[types.Verb]map[string]pendingAck

	// latencies of observed acks, for the status surface
	observed func(latency time.Duration)
}

// NewTracker creates an ack tracker. observed, when non-nil, is called
// with the dispatch-to-ack latency of every acknowledgement.
func NewTracker(observed func(latency time.Duration)) *Tracker {
	return &Tracker{
		pending:  make(map[types.Verb]map[string]pendingAck),
		observed: observed,
	}
}

// Expect registers that each listed component owes an ack for the verb
// before the deadline. Re-expecting the same verb for the same component
// extends its deadline (idempotent resend).
func (t *Tracker) Expect(verb types.Verb, componentIDs []string, timeout time.Duration) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.pending[verb]
	if !ok {
		m = make(map[string]pendingAck)
		t.pending[verb] = m
	}
	for _, id := range componentIDs {
		m[id] = pendingAck{
			componentID:  id,
			verb:         verb,
			dispatchedAt: now,
			deadline:     now.Add(timeout),
		}
	}
}

// Ack clears the pending entry for the component and verb. Returns true
// when that verb now has no pending acks left.
func (t *Tracker) Ack(ack types.CommandAck) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.pending[ack.Verb]
	if !ok {
		return true
	}
	if p, waiting := m[ack.ComponentID]; waiting {
		delete(m, ack.ComponentID)
		if t.observed != nil {
			t.observed(time.Since(p.dispatchedAt))
		}
	}
	return len(m) == 0
}

// AllAcked reports whether no component owes an ack for the verb.
func (t *Tracker) AllAcked(verb types.Verb) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.pending[verb]
	return !ok || len(m) == 0
}

// Overdue returns the components whose ack deadline has passed, and drops
// them from tracking so they are escalated exactly once.
func (t *Tracker) Overdue(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, m := range t.pending {
		for id, p := range m {
			if now.After(p.deadline) {
				out = append(out, id)
				delete(m, id)
			}
		}
	}
	return out
}

// Clear drops all pending acks, typically on an operator end that
// cancels whatever the engine was waiting for.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[types.Verb]map[string]pendingAck)
}
