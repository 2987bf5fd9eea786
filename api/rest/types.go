package rest

import (
	"cosim/orchestrator/internal/engine"
	"cosim/orchestrator/internal/stepsync"
	"cosim/orchestrator/pkg/types"
)

// RegisterRequest is the body of POST /api/v1/components.
type RegisterRequest struct {
	Name    string            `json:"name"`
	Address string            `json:"address,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// RegisterResponse returns the assigned component id.
type RegisterResponse struct {
	ComponentID string `json:"component_id"`
}

// ReportRequest is the body of POST /api/v1/reports.
type ReportRequest struct {
	ComponentID string   `json:"component_id"`
	State       string   `json:"state"`
	Status      string   `json:"status"`
	StepHint    *float64 `json:"step_hint,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// AckRequest is the body of POST /api/v1/acks.
type AckRequest struct {
	CommandID   string `json:"command_id"`
	ComponentID string `json:"component_id"`
	Verb        string `json:"verb"`
}

// SteerRequest is the body of POST /api/v1/steer.
type SteerRequest struct {
	Operation string `json:"operation"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	GlobalState  types.GlobalState  `json:"global_state"`
	GlobalStatus types.GlobalStatus `json:"global_status"`
	Components   int                `json:"components"`
	StepStats    stepsync.StepStats `json:"step_stats"`
	AckStats     engine.AckStats    `json:"ack_stats"`
}

// ErrorResponse carries an error message to the caller.
type ErrorResponse struct {
	Error string `json:"error"`
}
