package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/internal/engine"
	"cosim/orchestrator/internal/registry"
	"cosim/orchestrator/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *registry.Store) {
	t.Helper()

	store := registry.NewStore(false)
	eng := engine.New(config.EngineConfig{
		AckTimeout:       time.Second,
		HeartbeatTimeout: time.Minute,
		SweepInterval:    50 * time.Millisecond,
		ReportBuffer:     64,
	}, store, nil)
	srv := NewServer(config.ServerConfig{
		Address:      ":0",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, eng, store)
	eng.SetTransport(srv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	t.Cleanup(cancel)
	<-eng.Started()

	return srv, store
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterComponent(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/components", RegisterRequest{Name: "nest"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[RegisterResponse](t, resp)
	assert.NotEmpty(t, body.ComponentID)
	assert.Equal(t, 1, store.Count())

	info, err := store.Get(body.ComponentID)
	require.NoError(t, err)
	assert.Equal(t, "nest", info.Name)
}

func TestRegisterRequiresName(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/components", RegisterRequest{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportIngest(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/reports", ReportRequest{
		ComponentID: "nest",
		State:       "running",
		Status:      "up",
		Timestamp:   time.Now().UnixMilli(),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Ingest is asynchronous; the registry catches up once the loop runs.
	require.Eventually(t, func() bool {
		return store.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReportRejectsUnknownState(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/reports", ReportRequest{
		ComponentID: "nest",
		State:       "warming-up",
		Status:      "up",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAckIngest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/acks", AckRequest{
		ComponentID: "nest",
		Verb:        "init",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSteer(t *testing.T) {
	srv, _ := newTestServer(t)

	// Init is legal from the initial state.
	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/steer", SteerRequest{Operation: "init"}), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSteerIllegalTransitionConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/steer", SteerRequest{Operation: "resume"}), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "illegal")
}

func TestSteerUnknownOperation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/api/v1/steer", SteerRequest{Operation: "bogus"}), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[StatusResponse](t, resp)
	assert.Equal(t, types.GlobalStateInitializing, body.GlobalState)
	assert.Equal(t, types.GlobalStatusHealthy, body.GlobalStatus)
	assert.Equal(t, 0, body.Components)
}

func TestSnapshotAndComponents(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Register(context.Background(), types.ComponentInfo{ID: "nest", Name: "nest"}))

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[map[string]types.ComponentReport](t, resp)
	assert.Contains(t, snap, "nest")
	assert.Equal(t, types.LocalStateStarting, snap["nest"].State)

	resp, err = srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/components", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	infos := decodeBody[[]types.ComponentInfo](t, resp)
	require.Len(t, infos, 1)
	assert.Equal(t, "nest", infos[0].ID)
}

func TestCommandPollUnknownComponent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/commands/ghost?wait=50ms", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandPollDeliversQueuedCommand(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Register(context.Background(), types.ComponentInfo{ID: "nest", Name: "nest"}))

	step := 0.5
	sent := types.SteeringCommand{
		ID:       "cmd-1",
		Target:   types.TargetAll,
		Verb:     types.VerbStep,
		StepSize: &step,
		IssuedAt: time.Now(),
	}
	require.NoError(t, srv.Send(context.Background(), sent))

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/commands/nest?wait=500ms", nil), 2000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[types.SteeringCommand](t, resp)
	assert.Equal(t, "cmd-1", got.ID)
	assert.Equal(t, "nest", got.Target, "broadcast must be fanned out to the component")
	assert.Equal(t, types.VerbStep, got.Verb)
	require.NotNil(t, got.StepSize)
	assert.Equal(t, 0.5, *got.StepSize)
}

func TestCommandPollTimesOutEmpty(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Register(context.Background(), types.ComponentInfo{ID: "nest", Name: "nest"}))

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/commands/nest?wait=50ms", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Register(context.Background(), types.ComponentInfo{ID: "nest", Name: "nest"}))

	for i := 0; i < commandQueueSize+8; i++ {
		srv.enqueue("nest", types.SteeringCommand{ID: "old", Target: "nest", Verb: types.VerbStep})
	}
	srv.enqueue("nest", types.SteeringCommand{ID: "newest", Target: "nest", Verb: types.VerbPause})

	// Drain: the newest command must still be present.
	found := false
	for {
		cmd, ok := srv.nextCommand("nest", 10*time.Millisecond)
		if !ok {
			break
		}
		if cmd.ID == "newest" {
			found = true
		}
	}
	assert.True(t, found, "newest command was dropped instead of the oldest")
}
