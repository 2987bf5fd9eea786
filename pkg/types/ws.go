package types

import "encoding/json"

// WSMessageType defines WebSocket message types for orchestrator-supervisor
// communication.
type WSMessageType string

const (
	// Orchestrator -> Supervisor
	WSMsgCommand     WSMessageType = "command"
	WSMsgPing        WSMessageType = "ping"
	WSMsgRegisterAck WSMessageType = "register_ack"

	// Supervisor -> Orchestrator
	WSMsgRegister WSMessageType = "register"
	WSMsgReport   WSMessageType = "report"
	WSMsgAck      WSMessageType = "ack"
	WSMsgPong     WSMessageType = "pong"
)

// WSMessage is the unified envelope for all WebSocket messages.
type WSMessage struct {
	Type WSMessageType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
