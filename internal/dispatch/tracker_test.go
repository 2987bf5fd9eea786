package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosim/orchestrator/pkg/types"
)

func TestTrackerAckGating(t *testing.T) {
	tr := NewTracker(nil)
	tr.Expect(types.VerbInit, []string{"nest", "tvb", "lfpy"}, time.Minute)

	assert.False(t, tr.AllAcked(types.VerbInit))

	allClear := tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbInit})
	assert.False(t, allClear)
	allClear = tr.Ack(types.CommandAck{ComponentID: "tvb", Verb: types.VerbInit})
	assert.False(t, allClear)

	allClear = tr.Ack(types.CommandAck{ComponentID: "lfpy", Verb: types.VerbInit})
	assert.True(t, allClear)
	assert.True(t, tr.AllAcked(types.VerbInit))
}

func TestTrackerDuplicateAckIsHarmless(t *testing.T) {
	tr := NewTracker(nil)
	tr.Expect(types.VerbInit, []string{"nest", "tvb"}, time.Minute)

	tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbInit})
	allClear := tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbInit})
	assert.False(t, allClear, "redelivered ack must not clear a sibling's debt")
}

func TestTrackerAckForUntrackedVerb(t *testing.T) {
	tr := NewTracker(nil)

	// Nothing pending means nothing is owed.
	assert.True(t, tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbPause}))
	assert.True(t, tr.AllAcked(types.VerbPause))
}

func TestTrackerObservedLatency(t *testing.T) {
	var latencies []time.Duration
	tr := NewTracker(func(l time.Duration) { latencies = append(latencies, l) })

	tr.Expect(types.VerbStart, []string{"nest"}, time.Minute)
	tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbStart})

	require.Len(t, latencies, 1)
	assert.GreaterOrEqual(t, latencies[0], time.Duration(0))
	assert.Less(t, latencies[0], time.Minute)

	// Unmatched acks do not produce observations.
	tr.Ack(types.CommandAck{ComponentID: "nest", Verb: types.VerbStart})
	assert.Len(t, latencies, 1)
}

func TestTrackerOverdueEscalatesOnce(t *testing.T) {
	tr := NewTracker(nil)
	tr.Expect(types.VerbInit, []string{"nest", "tvb"}, 10*time.Millisecond)

	assert.Empty(t, tr.Overdue(time.Now()))

	late := time.Now().Add(time.Second)
	overdue := tr.Overdue(late)
	assert.ElementsMatch(t, []string{"nest", "tvb"}, overdue)

	// Dropped on first report, never escalated twice.
	assert.Empty(t, tr.Overdue(late))
	assert.True(t, tr.AllAcked(types.VerbInit))
}

func TestTrackerReExpectExtendsDeadline(t *testing.T) {
	tr := NewTracker(nil)
	tr.Expect(types.VerbInit, []string{"nest"}, 10*time.Millisecond)
	tr.Expect(types.VerbInit, []string{"nest"}, time.Minute)

	assert.Empty(t, tr.Overdue(time.Now().Add(time.Second)))
	assert.False(t, tr.AllAcked(types.VerbInit))
}

func TestTrackerClear(t *testing.T) {
	tr := NewTracker(nil)
	tr.Expect(types.VerbInit, []string{"nest"}, time.Minute)
	tr.Expect(types.VerbStart, []string{"tvb"}, time.Minute)

	tr.Clear()

	assert.True(t, tr.AllAcked(types.VerbInit))
	assert.True(t, tr.AllAcked(types.VerbStart))
	assert.Empty(t, tr.Overdue(time.Now().Add(time.Hour)))
}
