package registry

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"cosim/orchestrator/pkg/types"
)

// TestSnapshotAllOrNothingProperty checks that a snapshot is a complete,
// isolated view: it contains exactly one entry per component that ever
// reported, and later records never leak into an earlier snapshot.
func TestSnapshotAllOrNothingProperty(t *testing.T) {
	states := []types.LocalState{
		types.LocalStateStarting,
		types.LocalStateRunning,
		types.LocalStatePaused,
		types.LocalStateEnded,
		types.LocalStateError,
	}

	rapid.Check(t, func(t *rapid.T) {
		store := NewStore(false)
		ctx := context.Background()

		componentCount := rapid.IntRange(1, 10).Draw(t, "components")
		reportCount := rapid.IntRange(1, 50).Draw(t, "reports")

		last := make(map[string]types.LocalState)
		for i := 0; i < reportCount; i++ {
			id := fmt.Sprintf("comp-%d", rapid.IntRange(0, componentCount-1).Draw(t, "id"))
			state := states[rapid.IntRange(0, len(states)-1).Draw(t, "state")]

			report := types.ComponentReport{
				ComponentID: id,
				State:       state,
				Status:      types.LocalStatusUp,
			}
			if err := store.Record(ctx, report); err != nil {
				t.Fatalf("record failed: %v", err)
			}
			last[id] = state
		}

		snap := store.Snapshot()
		if len(snap) != len(last) {
			t.Fatalf("snapshot has %d entries, want %d", len(snap), len(last))
		}
		for id, state := range last {
			if snap[id].State != state {
				t.Fatalf("component %s: snapshot state %s, want last-arrival %s",
					id, snap[id].State, state)
			}
		}

		// Later records must not leak into the captured snapshot.
		before := make(map[string]types.LocalState, len(snap))
		for id, r := range snap {
			before[id] = r.State
		}
		for id := range last {
			_ = store.Record(ctx, types.ComponentReport{
				ComponentID: id,
				State:       types.LocalStateEnded,
				Status:      types.LocalStatusUp,
			})
		}
		for id, state := range before {
			if snap[id].State != state {
				t.Fatalf("component %s: snapshot mutated after capture", id)
			}
		}
	})
}
