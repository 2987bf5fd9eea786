package rest

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"cosim/orchestrator/internal/dispatch"
	"cosim/orchestrator/internal/engine"
	"cosim/orchestrator/pkg/types"
)

// handleRegister registers a component and returns its assigned id.
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "name is required"})
	}

	info := types.ComponentInfo{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Address: req.Address,
		Labels:  req.Labels,
	}
	if err := s.store.Register(c.Context(), info); err != nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(RegisterResponse{ComponentID: info.ID})
}

// handleReport ingests a component report.
func (s *Server) handleReport(c *fiber.Ctx) error {
	var req ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	report := types.ComponentReport{
		ComponentID: req.ComponentID,
		State:       types.LocalState(req.State),
		Status:      types.LocalStatus(req.Status),
		StepHint:    req.StepHint,
		Timestamp:   req.Timestamp,
	}
	if err := s.eng.SubmitReport(report); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleAck ingests a command acknowledgement.
func (s *Server) handleAck(c *fiber.Ctx) error {
	var req AckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	ack := types.CommandAck{
		CommandID:   req.CommandID,
		ComponentID: req.ComponentID,
		Verb:        types.Verb(req.Verb),
		Timestamp:   time.Now(),
	}
	if err := s.eng.SubmitAck(ack); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleCommands long-polls for the next steering command addressed to the
// component. Supervisors with a WebSocket connection never hit this path.
func (s *Server) handleCommands(c *fiber.Ctx) error {
	componentID := c.Params("componentID")
	if _, err := s.store.Get(componentID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	wait := 25 * time.Second
	if w, err := time.ParseDuration(c.Query("wait", "25s")); err == nil && w > 0 && w < time.Minute {
		wait = w
	}

	cmd, ok := s.nextCommand(componentID, wait)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(cmd)
}

// handleSteer applies an operator steering request.
func (s *Server) handleSteer(c *fiber.Ctx) error {
	var req SteerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	err := s.eng.Steer(c.Context(), engine.Operation(req.Operation))
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusAccepted)
	case errors.Is(err, dispatch.ErrIllegalTransition),
		errors.Is(err, engine.ErrResetNotAllowed):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
}

// handleStatus returns the workflow-wide state, status and step summary.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		GlobalState:  s.eng.GlobalState(),
		GlobalStatus: s.eng.GlobalStatus(),
		Components:   s.store.Count(),
		StepStats:    s.eng.StepStats(),
		AckStats:     s.eng.AckLatencyStats(),
	})
}

// handleSnapshot returns the full registry snapshot.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	return c.JSON(s.store.Snapshot())
}

// handleComponents lists registered components.
func (s *Server) handleComponents(c *fiber.Ctx) error {
	return c.JSON(s.store.Components())
}
