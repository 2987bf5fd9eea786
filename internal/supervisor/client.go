// Package supervisor implements the orchestrator-facing side of a local
// supervisor: registration, periodic state reports, and steering command
// reception. The supervised application itself (process launching,
// resource sampling) is outside this package; callers plug it in through
// the StateSource and CommandHandler hooks.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

// StateSource samples the supervised application's current lifecycle
// state, health status and step-size offer.
type StateSource interface {
	Sample() (types.LocalState, types.LocalStatus, *float64)
}

// CommandHandler executes one steering command against the supervised
// application. Handlers must be idempotent: the orchestrator may redeliver
// a command, and re-executing an already-applied verb must be a no-op.
type CommandHandler func(cmd types.SteeringCommand) error

// Client connects a local supervisor to the orchestrator.
type Client struct {
	cfg     config.SupervisorConfig
	source  StateSource
	handler CommandHandler

	componentID string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	connected   atomic.Bool
}

// NewClient creates a supervisor client.
func NewClient(cfg config.SupervisorConfig, source StateSource, handler CommandHandler) *Client {
	return &Client{
		cfg:     cfg,
		source:  source,
		handler: handler,
	}
}

// ComponentID returns the id assigned at registration.
func (c *Client) ComponentID() string { return c.componentID }

// Register announces the component to the orchestrator and stores the
// assigned id.
func (c *Client) Register(ctx context.Context) error {
	body := map[string]interface{}{
		"name":   c.cfg.ComponentName,
		"labels": c.cfg.Labels,
	}

	agent := fiber.Post(c.cfg.OrchestratorURL + "/api/v1/components")
	agent.Timeout(c.cfg.RequestTimeout)
	agent.JSON(body)

	var resp struct {
		ComponentID string `json:"component_id"`
	}
	code, _, errs := agent.Struct(&resp)
	if len(errs) > 0 {
		return fmt.Errorf("registering component: %v", errs[0])
	}
	if code != fiber.StatusCreated {
		return fmt.Errorf("registering component: unexpected status %d", code)
	}

	c.componentID = resp.ComponentID
	logger.Info("registered as component %s", c.componentID)
	return nil
}

// Run connects to the orchestrator and drives the report and command
// loops until the context is cancelled. Register must have succeeded
// first.
func (c *Client) Run(ctx context.Context) error {
	if c.componentID == "" {
		return fmt.Errorf("client not registered")
	}

	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.disconnect()

	errCh := make(chan error, 2)
	go func() { errCh <- c.readLoop(ctx) }()
	go func() { errCh <- c.reportLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) connect(ctx context.Context) error {
	wsURL := toWebSocketURL(c.cfg.OrchestratorURL) +
		"/api/v1/supervisor-ws?component_id=" + c.componentID

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.RequestTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to orchestrator: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	return nil
}

func (c *Client) disconnect() {
	if c.connected.CompareAndSwap(true, false) {
		_ = c.conn.Close()
	}
}

// reportLoop sends one report per heartbeat interval.
func (c *Client) reportLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// First report goes out immediately so the orchestrator sees the
	// component without waiting a full interval.
	if err := c.sendReport(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.sendReport(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) sendReport() error {
	state, status, hint := c.source.Sample()
	report := types.ComponentReport{
		ComponentID: c.componentID,
		State:       state,
		Status:      status,
		StepHint:    hint,
		Timestamp:   time.Now().UnixMilli(),
	}
	return c.writeMessage(types.WSMsgReport, report)
}

// readLoop handles inbound steering commands, executing them through the
// handler and acknowledging each one.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading from orchestrator: %w", err)
		}

		var msg types.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("malformed message from orchestrator")
			continue
		}

		switch msg.Type {
		case types.WSMsgCommand:
			var cmd types.SteeringCommand
			if err := json.Unmarshal(msg.Data, &cmd); err != nil {
				logger.Warn("malformed command from orchestrator")
				continue
			}
			c.execute(cmd)
		case types.WSMsgPing:
			_ = c.writeMessage(types.WSMsgPong, nil)
		case types.WSMsgRegisterAck:
			logger.Debug("connection acknowledged")
		}
	}
}

func (c *Client) execute(cmd types.SteeringCommand) {
	logger.Info("executing steering command %s", cmd.Verb)
	if err := c.handler(cmd); err != nil {
		logger.Error("steering command %s failed: %v", cmd.Verb, err)
		return
	}
	ack := types.CommandAck{
		CommandID:   cmd.ID,
		ComponentID: c.componentID,
		Verb:        cmd.Verb,
		Timestamp:   time.Now(),
	}
	if err := c.writeMessage(types.WSMsgAck, ack); err != nil {
		logger.Warn("sending ack for %s: %v", cmd.Verb, err)
	}
}

func (c *Client) writeMessage(msgType types.WSMessageType, payload interface{}) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	envelope, err := json.Marshal(types.WSMessage{Type: msgType, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, envelope)
}

// toWebSocketURL converts an http(s) URL to its ws(s) equivalent.
func toWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return "ws://" + httpURL
	}
}
