package registry

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosim/orchestrator/pkg/types"
)

func TestRegister(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	err := store.Register(ctx, types.ComponentInfo{ID: "comp-1", Name: "nest"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())

	// A registered component that has not reported yet counts as starting.
	snap := store.Snapshot()
	assert.Equal(t, types.LocalStateStarting, snap["comp-1"].State)
	assert.Equal(t, types.LocalStatusUp, snap["comp-1"].Status)
}

func TestRegisterDuplicate(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, types.ComponentInfo{ID: "comp-1"}))
	err := store.Register(ctx, types.ComponentInfo{ID: "comp-1"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterEmptyID(t *testing.T) {
	store := NewStore(false)
	assert.Error(t, store.Register(context.Background(), types.ComponentInfo{}))
}

func TestRecordAutoRegisters(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	err := store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())
}

func TestRecordStrictRejectsUnknown(t *testing.T) {
	store := NewStore(true)
	ctx := context.Background()

	err := store.Record(ctx, types.ComponentReport{
		ComponentID: "ghost",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
	})
	assert.ErrorIs(t, err, ErrUnknownComponent)
	assert.Equal(t, 0, store.Count())
}

func TestRecordMalformed(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	err := store.Record(ctx, types.ComponentReport{ComponentID: "comp-1", State: "bogus", Status: "up"})
	assert.Error(t, err)
	err = store.Record(ctx, types.ComponentReport{ComponentID: "comp-1", State: "running", Status: "sideways"})
	assert.Error(t, err)
	assert.Equal(t, 0, store.Count())
}

func TestRecordRejectsInvalidStepHint(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	for _, bad := range []float64{math.NaN(), math.Inf(-1), -0.5, 0} {
		hint := bad
		err := store.Record(ctx, types.ComponentReport{
			ComponentID: "comp-1",
			State:       types.LocalStateRunning,
			Status:      types.LocalStatusUp,
			StepHint:    &hint,
		})
		assert.Error(t, err, "step hint %v accepted", bad)
	}
	assert.Equal(t, 0, store.Count())
}

// TestRecordArrivalOrderWins documents the retention policy: the registry
// keeps the most recent report by arrival order, not by the supervisor
// timestamp, so a stale-clocked report still overwrites an earlier one.
func TestRecordArrivalOrderWins(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
		Timestamp:   2000,
	}))
	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStatePaused,
		Status:      types.LocalStatusUp,
		Timestamp:   1000, // older clock, later arrival
	}))

	snap := store.Snapshot()
	assert.Equal(t, types.LocalStatePaused, snap["comp-1"].State)
	assert.Equal(t, int64(1000), snap["comp-1"].Timestamp)
}

func TestMarkDownKeepsEntry(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
	}))
	require.NoError(t, store.MarkDown(ctx, "comp-1"))

	snap := store.Snapshot()
	assert.Equal(t, types.LocalStatusDown, snap["comp-1"].Status)
	// Lifecycle state untouched, entry retained.
	assert.Equal(t, types.LocalStateRunning, snap["comp-1"].State)
	assert.Equal(t, 1, store.Count())
}

func TestMarkDownUnknown(t *testing.T) {
	store := NewStore(false)
	assert.ErrorIs(t, store.MarkDown(context.Background(), "ghost"), ErrUnknownComponent)
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewStore(false)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
	}))

	snap := store.Snapshot()
	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateEnded,
		Status:      types.LocalStatusUp,
	}))

	// The earlier snapshot still shows the state at capture time.
	assert.Equal(t, types.LocalStateRunning, snap["comp-1"].State)
	assert.Equal(t, types.LocalStateEnded, store.Snapshot()["comp-1"].State)
}

func TestWatchEvents(t *testing.T) {
	store := NewStore(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := store.Watch(ctx)

	require.NoError(t, store.Register(ctx, types.ComponentInfo{ID: "comp-1"}))
	ev := <-events
	assert.Equal(t, EventRegistered, ev.Type)
	assert.Equal(t, "comp-1", ev.ComponentID)

	require.NoError(t, store.Record(ctx, types.ComponentReport{
		ComponentID: "comp-1",
		State:       types.LocalStateRunning,
		Status:      types.LocalStatusUp,
	}))
	ev = <-events
	assert.Equal(t, EventReported, ev.Type)
}
