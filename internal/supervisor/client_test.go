package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/pkg/types"
)

func TestToWebSocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080"},
		{"https://orchestrator.example.com", "wss://orchestrator.example.com"},
		{"localhost:8080", "ws://localhost:8080"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toWebSocketURL(tt.in))
	}
}

type staticSource struct {
	state  types.LocalState
	status types.LocalStatus
	hint   *float64
}

func (s staticSource) Sample() (types.LocalState, types.LocalStatus, *float64) {
	return s.state, s.status, s.hint
}

func TestRunRequiresRegistration(t *testing.T) {
	c := NewClient(config.SupervisorConfig{}, staticSource{}, func(types.SteeringCommand) error { return nil })

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
