// Package rest provides the HTTP control surface of the orchestrator:
// report ingest from local supervisors, steering command delivery, and the
// operator steering endpoints.
package rest

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/internal/engine"
	"cosim/orchestrator/internal/registry"
	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

// commandQueueSize bounds the per-component command backlog for
// supervisors polling over plain HTTP instead of WebSocket.
const commandQueueSize = 64

// Server is the orchestrator's HTTP server. It also implements
// engine.Transport: steering commands are pushed to connected supervisors
// over WebSocket, with a per-component queue as the polling fallback.
type Server struct {
	app   *fiber.App
	eng   *engine.Engine
	store *registry.Store
	cfg   config.ServerConfig
	hub   *SupervisorHub

	queues   map[string]chan types.SteeringCommand
	queuesMu sync.RWMutex
}

// NewServer creates the control surface around an engine and registry.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, store *registry.Store) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:    app,
		eng:    eng,
		store:  store,
		cfg:    cfg,
		queues: make(map[string]chan types.SteeringCommand),
	}
	s.hub = NewSupervisorHub(s)

	app.Use(fiberrecover.New())
	if cfg.EnableCORS {
		app.Use(cors.New())
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	v1 := s.app.Group("/api/v1")

	v1.Post("/components", s.handleRegister)
	v1.Post("/reports", s.handleReport)
	v1.Post("/acks", s.handleAck)
	v1.Get("/commands/:componentID", s.handleCommands)
	v1.Post("/steer", s.handleSteer)
	v1.Get("/status", s.handleStatus)
	v1.Get("/snapshot", s.handleSnapshot)
	v1.Get("/components", s.handleComponents)

	s.hub.Mount(v1, "/supervisor-ws")

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
}

// Start listens on the configured address. Blocks until shutdown.
func (s *Server) Start() error {
	logger.Info("control surface listening on %s", s.cfg.Address)
	return s.app.Listen(s.cfg.Address)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.app.ShutdownWithContext(ctx)
}

// Send delivers a steering command, fanning a broadcast out to every
// registered component. Connected supervisors get it pushed over
// WebSocket; others find it on their next command poll.
func (s *Server) Send(ctx context.Context, cmd types.SteeringCommand) error {
	targets := []string{cmd.Target}
	if cmd.Target == types.TargetAll {
		targets = s.store.IDs()
	}
	for _, id := range targets {
		delivered := cmd
		delivered.Target = id
		if s.hub.Push(id, delivered) {
			continue
		}
		s.enqueue(id, delivered)
	}
	return nil
}

func (s *Server) enqueue(componentID string, cmd types.SteeringCommand) {
	s.queuesMu.Lock()
	q, ok := s.queues[componentID]
	if !ok {
		q = make(chan types.SteeringCommand, commandQueueSize)
		s.queues[componentID] = q
	}
	s.queuesMu.Unlock()

	for {
		select {
		case q <- cmd:
			return
		default:
			// Backlog full: drop the oldest. Commands are idempotent and
			// the newest one reflects the current workflow state.
			select {
			case <-q:
			default:
			}
		}
	}
}

// nextCommand waits up to timeout for a command addressed to the component.
func (s *Server) nextCommand(componentID string, timeout time.Duration) (types.SteeringCommand, bool) {
	s.queuesMu.Lock()
	q, ok := s.queues[componentID]
	if !ok {
		q = make(chan types.SteeringCommand, commandQueueSize)
		s.queues[componentID] = q
	}
	s.queuesMu.Unlock()

	select {
	case cmd := <-q:
		return cmd, true
	case <-time.After(timeout):
		return types.SteeringCommand{}, false
	}
}
