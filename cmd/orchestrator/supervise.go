package main

import (
	"sync"

	"github.com/spf13/cobra"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/internal/supervisor"
	"cosim/orchestrator/pkg/types"
)

// simComponent is a loopback component for exercising an orchestrator
// deployment without a real integrated application: it follows steering
// commands with an in-memory lifecycle and offers a fixed step hint.
type simComponent struct {
	mu    sync.Mutex
	state types.LocalState
	hint  float64
}

func (s *simComponent) Sample() (types.LocalState, types.LocalStatus, *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hint := s.hint
	return s.state, types.LocalStatusUp, &hint
}

func (s *simComponent) handle(cmd types.SteeringCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent by construction: re-applying the current phase's verb
	// leaves the state unchanged.
	switch cmd.Verb {
	case types.VerbInit:
		// Stay in starting until start; init only confirms readiness.
	case types.VerbStart, types.VerbResume:
		if s.state != types.LocalStateEnded {
			s.state = types.LocalStateRunning
		}
	case types.VerbPause:
		if s.state == types.LocalStateRunning {
			s.state = types.LocalStatePaused
		}
	case types.VerbEnd:
		s.state = types.LocalStateEnded
	case types.VerbStep:
		// The simulated component advances instantly.
	}
	return nil
}

func newSuperviseCmd() *cobra.Command {
	var (
		url  string
		name string
		hint float64
	)

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run a simulated supervised component against an orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().WithConfigPath(cfgFile).Load()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Supervisor.OrchestratorURL = url
			}
			if name != "" {
				cfg.Supervisor.ComponentName = name
			}
			if cfg.Supervisor.ComponentName == "" {
				cfg.Supervisor.ComponentName = "sim-component"
			}

			sim := &simComponent{state: types.LocalStateStarting, hint: hint}
			client := supervisor.NewClient(cfg.Supervisor, sim, sim.handle)

			if err := client.Register(cmd.Context()); err != nil {
				return err
			}
			return client.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "orchestrator base URL override")
	cmd.Flags().StringVar(&name, "name", "", "component name")
	cmd.Flags().Float64Var(&hint, "step-hint", 1.0, "step-size offer in seconds")
	return cmd
}
