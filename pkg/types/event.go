package types

import "time"

// StateChangeEvent is emitted on every global state change for external
// logging and monitoring.
type StateChangeEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Previous  GlobalState `json:"previous"`
	New       GlobalState `json:"new"`

	// TriggeredBy is the component whose report or acknowledgement caused
	// the change, empty when the change was operator- or timeout-initiated.
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// StatusChangeEvent is emitted on every global status change.
type StatusChangeEvent struct {
	Timestamp   time.Time    `json:"timestamp"`
	Previous    GlobalStatus `json:"previous"`
	New         GlobalStatus `json:"new"`
	TriggeredBy string       `json:"triggered_by,omitempty"`
}
