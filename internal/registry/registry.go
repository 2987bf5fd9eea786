// Package registry holds the last-known report of every component taking
// part in the workflow.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosim/orchestrator/pkg/types"
)

var (
	// ErrUnknownComponent is returned for a report or command that
	// references an id that was never registered when strict registration
	// is enabled.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrAlreadyRegistered is returned when a component id is registered
	// twice.
	ErrAlreadyRegistered = errors.New("component already registered")
)

// EventType classifies registry events.
type EventType string

const (
	// EventRegistered is emitted when a component joins the workflow.
	EventRegistered EventType = "registered"
	// EventReported is emitted when a component's report is recorded.
	EventReported EventType = "reported"
	// EventMarkedDown is emitted when a component is escalated to down.
	EventMarkedDown EventType = "marked_down"
)

// Event notifies subscribers of registry changes.
type Event struct {
	Type        EventType
	ComponentID string
	Report      types.ComponentReport
}

// Store is the in-memory component registry. It keeps one entry per
// component id, overwritten on each new report, and never deletes an
// entry mid-run: a registered component stays visible until the workflow
// terminates.
//
// The registry retains the most recent report by arrival order, not by
// the supervisor-side timestamp. The orchestrator must react to the
// latest known truth; re-deriving causal order from possibly-skewed
// supervisor clocks would be less reliable than arrival order on a
// single ingest path. Out-of-order arrivals are therefore recorded, not
// rejected.
type Store struct {
	components map[string]types.ComponentInfo
	reports    map[string]types.ComponentReport

	// strict rejects reports from unregistered ids instead of
	// auto-registering them.
	strict bool

	subscribers []chan Event
	subMu       sync.RWMutex

	mu sync.RWMutex
}

// NewStore creates an empty registry. With strict set, reports from ids
// that never registered fail with ErrUnknownComponent; otherwise the
// first report auto-registers the component.
func NewStore(strict bool) *Store {
	return &Store{
		components: make(map[string]types.ComponentInfo),
		reports:    make(map[string]types.ComponentReport),
		strict:     strict,
	}
}

// Register registers a new component.
func (s *Store) Register(ctx context.Context, info types.ComponentInfo) error {
	if info.ID == "" {
		return fmt.Errorf("component ID cannot be empty")
	}

	s.mu.Lock()
	if _, exists := s.components[info.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, info.ID)
	}
	s.components[info.ID] = info

	// A registered component that has not reported yet counts as starting.
	first := types.ComponentReport{
		ComponentID: info.ID,
		State:       types.LocalStateStarting,
		Status:      types.LocalStatusUp,
		ReceivedAt:  time.Now(),
	}
	s.reports[info.ID] = first
	s.mu.Unlock()

	s.notify(Event{Type: EventRegistered, ComponentID: info.ID, Report: first})
	return nil
}

// Record overwrites the registry entry for the report's component. The
// update is all-or-nothing with respect to Snapshot: a snapshot observes
// either the previous report or the new one, never a partial write.
func (s *Store) Record(ctx context.Context, report types.ComponentReport) error {
	if report.ComponentID == "" {
		return fmt.Errorf("report component ID cannot be empty")
	}
	if !report.State.Valid() || !report.Status.Valid() {
		return fmt.Errorf("malformed report from %s: state=%q status=%q",
			report.ComponentID, report.State, report.Status)
	}
	if !report.HintValid() {
		return fmt.Errorf("malformed report from %s: step hint %v is not a positive finite value",
			report.ComponentID, *report.StepHint)
	}

	s.mu.Lock()
	_, known := s.components[report.ComponentID]
	if !known {
		if s.strict {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownComponent, report.ComponentID)
		}
		s.components[report.ComponentID] = types.ComponentInfo{ID: report.ComponentID}
	}
	report.ReceivedAt = time.Now()
	s.reports[report.ComponentID] = report
	s.mu.Unlock()

	if !known {
		s.notify(Event{Type: EventRegistered, ComponentID: report.ComponentID, Report: report})
	}
	s.notify(Event{Type: EventReported, ComponentID: report.ComponentID, Report: report})
	return nil
}

// MarkDown escalates a component's status to down without touching its
// lifecycle state, typically after an acknowledgement timeout. The entry
// stays in the registry.
func (s *Store) MarkDown(ctx context.Context, componentID string) error {
	s.mu.Lock()
	report, exists := s.reports[componentID]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	if report.Status == types.LocalStatusDown {
		s.mu.Unlock()
		return nil
	}
	report.Status = types.LocalStatusDown
	report.ReceivedAt = time.Now()
	s.reports[componentID] = report
	s.mu.Unlock()

	s.notify(Event{Type: EventMarkedDown, ComponentID: componentID, Report: report})
	return nil
}

// Snapshot returns an immutable point-in-time view of the full registry.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(types.Snapshot, len(s.reports))
	for id, r := range s.reports {
		snap[id] = r
	}
	return snap
}

// Get returns a single component's registration info.
func (s *Store) Get(componentID string) (types.ComponentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.components[componentID]
	if !exists {
		return types.ComponentInfo{}, fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	return info, nil
}

// Components returns all registered components.
func (s *Store) Components() []types.ComponentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ComponentInfo, 0, len(s.components))
	for _, info := range s.components {
		out = append(out, info)
	}
	return out
}

// IDs returns all registered component ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.components))
	for id := range s.components {
		out = append(out, id)
	}
	return out
}

// Count returns the number of registered components.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.components)
}

// Watch subscribes to registry events until the context is done.
func (s *Store) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, 100)

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeSubscriber(ch)
		close(ch)
	}()

	return ch
}

func (s *Store) notify(event Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

func (s *Store) removeSubscriber(ch chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}
