package rest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"

	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

// SupervisorConn wraps a single WebSocket connection from a supervisor.
type SupervisorConn struct {
	componentID string
	conn        *fiberws.Conn
	send        chan []byte
	hub         *SupervisorHub
	done        chan struct{}
	once        sync.Once
}

// SupervisorHub manages all supervisor WebSocket connections.
type SupervisorHub struct {
	conns        map[string]*SupervisorConn
	mu           sync.RWMutex
	server       *Server
	pingInterval time.Duration
}

// NewSupervisorHub creates a new hub.
func NewSupervisorHub(server *Server) *SupervisorHub {
	return &SupervisorHub{
		conns:        make(map[string]*SupervisorConn),
		server:       server,
		pingInterval: 20 * time.Second,
	}
}

// Mount registers the WebSocket endpoint on the router. The supervisor
// identifies itself with a component_id query parameter.
func (h *SupervisorHub) Mount(router fiber.Router, path string) {
	router.Use(path, func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get(path, fiberws.New(func(c *fiberws.Conn) {
		componentID := c.Query("component_id")
		if componentID == "" {
			_ = c.Close()
			return
		}
		if _, err := h.server.store.Get(componentID); err != nil {
			logger.Warn("rejecting websocket from unknown component %s", componentID)
			_ = c.Close()
			return
		}
		h.serve(componentID, c)
	}))
}

// HasConn returns true if the component has an active connection.
func (h *SupervisorHub) HasConn(componentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[componentID]
	return ok
}

// Push sends a steering command to a connected supervisor. Returns false
// when the component has no connection or its buffer is full, so the
// caller can fall back to the polling queue.
func (h *SupervisorHub) Push(componentID string, cmd types.SteeringCommand) bool {
	h.mu.RLock()
	conn, ok := h.conns[componentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return false
	}
	envelope, err := json.Marshal(types.WSMessage{Type: types.WSMsgCommand, Data: data})
	if err != nil {
		return false
	}

	select {
	case conn.send <- envelope:
		return true
	default:
		logger.Warn("send buffer full for component %s", componentID)
		return false
	}
}

// CloseAll closes every connection, on shutdown.
func (h *SupervisorHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		conn.close()
		delete(h.conns, id)
	}
}

func (h *SupervisorHub) register(conn *SupervisorConn) {
	h.mu.Lock()
	if old, ok := h.conns[conn.componentID]; ok {
		old.close()
	}
	h.conns[conn.componentID] = conn
	h.mu.Unlock()
}

func (h *SupervisorHub) unregister(componentID string) {
	h.mu.Lock()
	delete(h.conns, componentID)
	h.mu.Unlock()
}

// serve runs the connection until the supervisor disconnects.
func (h *SupervisorHub) serve(componentID string, ws *fiberws.Conn) {
	conn := &SupervisorConn{
		componentID: componentID,
		conn:        ws,
		send:        make(chan []byte, 32),
		hub:         h,
		done:        make(chan struct{}),
	}
	h.register(conn)
	defer h.unregister(componentID)

	ack, _ := json.Marshal(types.WSMessage{Type: types.WSMsgRegisterAck})
	_ = ws.WriteMessage(fiberws.TextMessage, ack)

	go conn.writePump()
	conn.readPump()
}

func (c *SupervisorConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump feeds inbound reports and acks into the engine.
func (c *SupervisorConn) readPump() {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logger.Debug("websocket read from %s: %v", c.componentID, err)
			return
		}

		var msg types.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("malformed websocket message from %s", c.componentID)
			continue
		}

		switch msg.Type {
		case types.WSMsgReport:
			var report types.ComponentReport
			if err := json.Unmarshal(msg.Data, &report); err != nil {
				logger.Warn("malformed report from %s", c.componentID)
				continue
			}
			report.ComponentID = c.componentID
			if err := c.hub.server.eng.SubmitReport(report); err != nil {
				logger.Warn("rejecting report: %v", err)
			}
		case types.WSMsgAck:
			var ack types.CommandAck
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				logger.Warn("malformed ack from %s", c.componentID)
				continue
			}
			ack.ComponentID = c.componentID
			if ack.Timestamp.IsZero() {
				ack.Timestamp = time.Now()
			}
			if err := c.hub.server.eng.SubmitAck(ack); err != nil {
				logger.Warn("rejecting ack: %v", err)
			}
		case types.WSMsgPong:
			// Liveness only; the report heartbeat carries the payload.
		default:
			logger.Debug("unexpected websocket message %q from %s", msg.Type, c.componentID)
		}
	}
}

// writePump pushes queued commands and periodic pings.
func (c *SupervisorConn) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer ticker.Stop()
	defer c.close()

	ping, _ := json.Marshal(types.WSMessage{Type: types.WSMsgPing})

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(fiberws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(fiberws.TextMessage, ping); err != nil {
				return
			}
		}
	}
}
